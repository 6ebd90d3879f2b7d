package service

import (
	"sync"

	"greenly-backend/internal/model"
)

// SelectionService 维护每个用户的报告选择集。
// 集合按选择顺序保序，报告按同样的顺序渲染
type SelectionService struct {
	mu   sync.Mutex
	sets map[string]*selectionSet
}

type selectionSet struct {
	items []model.SelectedItem
	index map[string]int
}

func NewSelectionService() *SelectionService {
	return &SelectionService{
		sets: make(map[string]*selectionSet),
	}
}

func (s *SelectionService) set(userKey string) *selectionSet {
	if set, ok := s.sets[userKey]; ok {
		return set
	}
	set := &selectionSet{index: make(map[string]int)}
	s.sets[userKey] = set
	return set
}

// Toggle 对称差语义：存在则移除，不存在则追加。
// 同一个条目连按两次，集合回到原样
func (s *SelectionService) Toggle(userKey string, item model.SelectedItem) []model.SelectedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.set(userKey)

	if pos, ok := set.index[item.ID]; ok {
		set.items = append(set.items[:pos], set.items[pos+1:]...)
		delete(set.index, item.ID)
		for i := pos; i < len(set.items); i++ {
			set.index[set.items[i].ID] = i
		}
		return set.snapshot()
	}

	set.index[item.ID] = len(set.items)
	set.items = append(set.items, item)
	return set.snapshot()
}

// Items 当前选择集的副本，按选择顺序
func (s *SelectionService) Items(userKey string) []model.SelectedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(userKey).snapshot()
}

// Contains 条目是否在选择集中
func (s *SelectionService) Contains(userKey, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.set(userKey).index[itemID]
	return ok
}

// Clear 清空选择集，报告生成之后调用
func (s *SelectionService) Clear(userKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sets, userKey)
}

func (set *selectionSet) snapshot() []model.SelectedItem {
	out := make([]model.SelectedItem, len(set.items))
	copy(out, set.items)
	return out
}
