package index

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 是布隆过滤器的并发安全包装类
// 混合阶段用它快速判断一个页号是否可能已被更高排名的分组认领，
// 只有命中时才需要去树里做精确查找
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter 创建一个新的布隆过滤器
// 参数：
//   - n: 预期存储的页面数量
//   - fp: 期望的误判率
//
// 返回：
//   - *BloomFilter: 布隆过滤器指针
func NewBloomFilter(n uint, fp float64) *BloomFilter {
	// 使用 NewWithEstimates 自动计算最优的 m 和 k
	return &BloomFilter{
		filter: bloom.NewWithEstimates(n, fp),
	}
}

// bloomKey 将页号编码为 8 字节小端序
func bloomKey(page int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(page))
	return buf[:]
}

// Add 将一个页号加入布隆过滤器
// 参数：
//   - page: 已被认领的页号
func (bf *BloomFilter) Add(page int64) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.Add(bloomKey(page))
}

// Test 测试一个页号是否可能已被认领
// 参数：
//   - page: 要测试的页号
//
// 返回：
//   - bool: true 表示可能已认领，false 表示一定未认领
func (bf *BloomFilter) Test(page int64) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Test(bloomKey(page))
}

// Reset 重置布隆过滤器
func (bf *BloomFilter) Reset() {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	m := bf.filter.Cap()
	k := bf.filter.K()
	bf.filter = bloom.New(m, k)
}

// K 返回布隆过滤器使用的哈希函数数量
func (bf *BloomFilter) K() uint {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.K()
}

// Cap 返回布隆过滤器的容量
func (bf *BloomFilter) Cap() uint {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Cap()
}
