package jobstore

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
)

var (
	ErrNotFound      = errors.New("任务不存在")
	ErrCheckedOut    = errors.New("任务正在被使用")
	ErrNotCheckedOut = errors.New("任务没有被取出")
	ErrExists        = errors.New("任务已经存在")
)

// Store 保存每个任务独占的 Director，同一时刻只有一个调用方可以持有它
type Store interface {
	Put(jobID string, d *director.Director) error
	// Checkout 取出 Director 的所有权，在 Release 之前再次取出会返回 ErrCheckedOut
	Checkout(jobID string) (*director.Director, error)
	Release(jobID string, d *director.Director) error
	Delete(jobID string) error
	IDs() []string
}

type slot struct {
	director   *director.Director
	checkedOut bool
}

// MemoryStore 是进程内的 Store 实现
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*slot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*slot)}
}

func (s *MemoryStore) Put(jobID string, d *director.Director) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, jobID)
	}
	s.jobs[jobID] = &slot{director: d}
	return nil
}

func (s *MemoryStore) Checkout(jobID string) (*director.Director, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	case job.checkedOut:
		return nil, fmt.Errorf("%w: %s", ErrCheckedOut, jobID)
	}
	job.checkedOut = true
	return job.director, nil
}

// Release 归还所有权，d 可以是取出后替换的新 Director
func (s *MemoryStore) Release(jobID string, d *director.Director) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	case !job.checkedOut:
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, jobID)
	}
	job.director = d
	job.checkedOut = false
	return nil
}

func (s *MemoryStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	case job.checkedOut:
		return fmt.Errorf("%w: %s", ErrCheckedOut, jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
