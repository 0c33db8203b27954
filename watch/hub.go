package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	art "github.com/plar/go-adaptive-radix-tree"
)

// ==================== 事件定义 ====================

// EventType 定义事件类型
type EventType string

const (
	EventPhase    EventType = "phase"    // 阶段开始/结束
	EventWarning  EventType = "warning"  // 非致命告警
	EventProgress EventType = "progress" // 进度计数（已认领/已写出的页面数）
	EventDone     EventType = "done"     // 一次重建运行结束
)

// Event 表示重建运行过程中的一个进度事件
type Event struct {
	Type    EventType `json:"type"`              // 事件类型
	Topic   string    `json:"topic"`             // 事件主题：extract / parse / mix / rebuild
	Message string    `json:"message,omitempty"` // 人类可读的描述
	Value   int64     `json:"value,omitempty"`   // 计数值（进度事件使用）
	Time    int64     `json:"time"`              // 事件产生的 Unix 时间戳
}

// ==================== Watcher 定义 ====================

// Watcher 表示一个订阅进度事件的客户端
// 包含用于推送事件的 channel
type Watcher struct {
	// 用于推送事件的通道
	// 运行过程中产生的事件会通过这个 channel 发送给客户端
	Ch chan *Event

	// 该 watcher 关注的主题前缀
	// 如果为空字符串，表示关注所有事件
	Topic string

	// 是否已关闭
	closed bool
}

// NewWatcher 创建新的 Watcher
//
// 参数：
//   - topic: 关注的主题前缀，为空表示关注所有
//   - bufferSize: 事件通道的缓冲区大小
//
// 返回：
//   - *Watcher: Watcher 实例
func NewWatcher(topic string, bufferSize int) *Watcher {
	return &Watcher{
		Ch:    make(chan *Event, bufferSize),
		Topic: topic,
	}
}

// IsMatch 检查事件是否匹配该 Watcher 的主题前缀
func (w *Watcher) IsMatch(event *Event) bool {
	// 如果主题为空，表示匹配所有
	if w.Topic == "" {
		return true
	}
	// 检查事件主题是否以指定前缀开头
	return strings.HasPrefix(event.Topic, w.Topic)
}

// Close 关闭 Watcher
func (w *Watcher) Close() {
	if !w.closed {
		close(w.Ch)
		w.closed = true
	}
}

// ==================== Hub 定义 ====================

// Hub 进度事件通知中心
// 负责管理所有的 Watcher，并将运行事件分发到对应的 Watcher
// 事件发送是非阻塞的：慢客户端会丢事件，但绝不拖慢重建主流程
type Hub struct {
	// 所有的 watcher 列表
	watchers []*Watcher

	// 保护 watchers 列表的锁
	mu sync.RWMutex

	// 用于主题前缀匹配的 ART 树
	// key: 主题前缀字符串
	// value: 关注该前缀的所有 watcher 列表
	topicTree art.Tree

	// 统计信息
	watcherCount int64
}

// NewHub 创建新的 Hub
//
// 返回：
//   - *Hub: Hub 实例
func NewHub() *Hub {
	return &Hub{
		watchers:  make([]*Watcher, 0),
		topicTree: art.New(),
	}
}

// ==================== Watcher 管理 ====================

// Watch 注册一个新的 Watcher
// 运行过程中产生匹配主题的事件时，会向该 Watcher 的 channel 发送事件
//
// 参数：
//   - topic: 关注的主题前缀，为空表示关注所有事件
//   - bufferSize: 事件通道的缓冲区大小
//
// 返回：
//   - *Watcher: 注册的 Watcher 实例
func (h *Hub) Watch(topic string, bufferSize int) *Watcher {
	watcher := NewWatcher(topic, bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	// 将 watcher 添加到列表
	h.watchers = append(h.watchers, watcher)

	// 如果指定了主题，将其添加到主题树以便快速匹配
	if topic != "" {
		// 获取该主题已有的 watcher 列表
		val, _ := h.topicTree.Search(art.Key(topic))
		var list []*Watcher
		if val != nil {
			list = val.([]*Watcher)
		}
		list = append(list, watcher)
		h.topicTree.Insert(art.Key(topic), list)
	}

	// 更新统计
	h.watcherCount++

	return watcher
}

// Unregister 取消注册一个 Watcher
//
// 参数：
//   - watcher: 要取消注册的 Watcher
func (h *Hub) Unregister(watcher *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 从 watchers 列表中移除
	for i, w := range h.watchers {
		if w == watcher {
			h.watchers = append(h.watchers[:i], h.watchers[i+1:]...)
			break
		}
	}

	// 如果有主题，从主题树中移除
	if watcher.Topic != "" {
		val, found := h.topicTree.Search(art.Key(watcher.Topic))
		if found {
			list := val.([]*Watcher)
			for i, w := range list {
				if w == watcher {
					list = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(list) > 0 {
				h.topicTree.Insert(art.Key(watcher.Topic), list)
			} else {
				h.topicTree.Delete(art.Key(watcher.Topic))
			}
		}
	}

	// 关闭 watcher
	watcher.Close()

	// 更新统计
	h.watcherCount--
}

// ==================== 事件通知 ====================

// Notify 通知所有匹配的 Watcher
//
// 参数：
//   - event: 进度事件
func (h *Hub) Notify(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// 遍历所有 watcher，检查是否匹配
	for _, watcher := range h.watchers {
		// 跳过已关闭的 watcher
		if watcher.closed {
			continue
		}

		// 检查事件是否匹配该 watcher 的主题
		if watcher.IsMatch(event) {
			// 非阻塞发送，避免阻塞重建主流程
			select {
			case watcher.Ch <- event:
			default:
				// channel 已满，跳过这个 watcher
			}
		}
	}
}

// NotifyPhase 通知阶段事件
// 【挂载点】各阶段（extract/parse/mix/rebuild）开始和结束时调用
//
// 参数：
//   - topic: 阶段主题
//   - message: 阶段描述
func (h *Hub) NotifyPhase(topic, message string) {
	h.Notify(&Event{
		Type:    EventPhase,
		Topic:   topic,
		Message: message,
		Time:    time.Now().Unix(),
	})
}

// NotifyWarning 通知告警事件
// 【挂载点】混合与重建过程中每个非致命告警都会转发到这里
//
// 参数：
//   - topic: 告警所属阶段
//   - message: 告警内容
func (h *Hub) NotifyWarning(topic, message string) {
	h.Notify(&Event{
		Type:    EventWarning,
		Topic:   topic,
		Message: message,
		Time:    time.Now().Unix(),
	})
}

// NotifyProgress 通知进度计数事件
//
// 参数：
//   - topic: 进度所属阶段
//   - value: 当前计数（已认领的页面数、已写出的页面数等）
func (h *Hub) NotifyProgress(topic string, value int64) {
	h.Notify(&Event{
		Type:  EventProgress,
		Topic: topic,
		Value: value,
		Time:  time.Now().Unix(),
	})
}

// NotifyDone 通知一次重建运行结束
//
// 参数：
//   - message: 结束摘要
func (h *Hub) NotifyDone(message string) {
	h.Notify(&Event{
		Type:    EventDone,
		Topic:   "run",
		Message: message,
		Time:    time.Now().Unix(),
	})
}

// ==================== 主题匹配（利用 ART 特性） ====================

// FindWatchersByTopic 找到所有关注指定主题的 watcher
// 这个方法利用 ART 树的前缀匹配特性
//
// 参数：
//   - topic: 事件主题
//
// 返回：
//   - []*Watcher: 匹配的所有 watcher
func (h *Hub) FindWatchersByTopic(topic string) []*Watcher {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []*Watcher

	// 遍历主题树，查找所有匹配的前缀
	prefixes := h.findMatchingPrefixes(topic)

	for _, prefix := range prefixes {
		val, found := h.topicTree.Search(art.Key(prefix))
		if found {
			list := val.([]*Watcher)
			result = append(result, list...)
		}
	}

	// 也添加关注所有事件的 watcher
	for _, watcher := range h.watchers {
		if watcher.Topic == "" && !containsWatcher(result, watcher) {
			result = append(result, watcher)
		}
	}

	return result
}

// findMatchingPrefixes 找到所有可能匹配的主题前缀
func (h *Hub) findMatchingPrefixes(topic string) []string {
	var prefixes []string

	// 从最短的前缀开始尝试
	for i := 1; i <= len(topic); i++ {
		prefix := topic[:i]
		_, found := h.topicTree.Search(art.Key(prefix))
		if found {
			prefixes = append(prefixes, prefix)
		}
	}

	return prefixes
}

// ==================== 工具方法 ====================

// Count 返回当前注册的 watcher 数量
func (h *Hub) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.watcherCount
}

// Close 关闭所有 watcher
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, watcher := range h.watchers {
		watcher.Close()
	}
	h.watchers = nil
	h.topicTree = art.New()
	h.watcherCount = 0
}

// String 返回 Hub 的字符串描述
func (h *Hub) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("Hub{watchers: %d}", len(h.watchers))
}

// ==================== 辅助函数 ====================

// containsWatcher 检查 watcher 列表中是否包含指定的 watcher
func containsWatcher(list []*Watcher, w *Watcher) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

// EventToJSON 将事件转换为 JSON 字符串
func EventToJSON(event *Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseEventFromJSON 从 JSON 字符串解析事件
func ParseEventFromJSON(data string) (*Event, error) {
	var event Event
	err := json.Unmarshal([]byte(data), &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
