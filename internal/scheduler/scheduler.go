// Package scheduler 轮询数据库里的排队任务并分发给引擎工作线程
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Apublisher/internal/database"
	"Apublisher/internal/engine"
	"Apublisher/internal/utils"
)

const (
	pollInterval   = 10 * time.Second
	queueCapacity  = 100
	batchSizeLimit = 50
)

type Scheduler struct {
	store     *database.TaskStore
	engine    *engine.Engine
	workers   int
	taskQueue chan string
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// 队列里已有的任务ID，避免同一任务被重复投递
	inflight   map[string]struct{}
	inflightMu sync.Mutex
}

func New(store *database.TaskStore, eng *engine.Engine, workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		store:     store,
		engine:    eng,
		workers:   workers,
		taskQueue: make(chan string, queueCapacity),
		stopChan:  make(chan struct{}),
		inflight:  make(map[string]struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.pollLoop()

	utils.Info(fmt.Sprintf("[+] 调度器已启动，工作线程数: %d", s.workers))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	utils.Info("[+] 调度器已停止")
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case taskID := <-s.taskQueue:
			s.execute(id, taskID)
		}
	}
}

func (s *Scheduler) execute(workerID int, taskID string) {
	defer func() {
		s.inflightMu.Lock()
		delete(s.inflight, taskID)
		s.inflightMu.Unlock()
	}()

	utils.Debug(fmt.Sprintf("工作线程 %d 领取任务: %s", workerID, taskID))
	if err := s.engine.ExecutePublishTask(context.Background(), taskID); err != nil {
		utils.Warn(fmt.Sprintf("任务 %s 执行结束并带有错误: %v", taskID, err))
	}
}

func (s *Scheduler) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// 启动时先扫一次，不等第一个tick
	s.dispatchQueued()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.dispatchQueued()
		}
	}
}

func (s *Scheduler) dispatchQueued() {
	tasks, err := s.store.ListQueued(context.Background(), batchSizeLimit)
	if err != nil {
		utils.Warn(fmt.Sprintf("查询排队任务失败: %v", err))
		return
	}

	for _, task := range tasks {
		s.inflightMu.Lock()
		if _, dup := s.inflight[task.TaskID]; dup {
			s.inflightMu.Unlock()
			continue
		}
		s.inflight[task.TaskID] = struct{}{}
		s.inflightMu.Unlock()

		select {
		case s.taskQueue <- task.TaskID:
		default:
			s.inflightMu.Lock()
			delete(s.inflight, task.TaskID)
			s.inflightMu.Unlock()
			return
		}
	}
}
