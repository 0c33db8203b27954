package index

import (
	"testing"
)

// 两种实现共用同一组行为测试
func testPageIndex(t *testing.T, idx PageIndex) {
	t.Helper()
	defer idx.Close()

	// 首次认领成功
	if !idx.PutIfAbsent(3, "dumpA") {
		t.Fatal("首次认领页号 3 失败")
	}
	// 重复认领不覆盖
	if idx.PutIfAbsent(3, "dumpB") {
		t.Error("已认领的页号被覆盖")
	}
	src, ok := idx.Get(3)
	if !ok || src != "dumpA" {
		t.Errorf("页号 3 的来源不匹配: got %q, want dumpA", src)
	}

	if _, ok := idx.Get(99); ok {
		t.Error("未认领的页号被报告为存在")
	}

	idx.PutIfAbsent(0, "dumpA")
	idx.PutIfAbsent(7, "dumpB")
	idx.PutIfAbsent(1, "dumpC")
	if idx.Size() != 4 {
		t.Errorf("已认领页面数不匹配: got %d, want 4", idx.Size())
	}

	// 升序遍历
	var pages []int64
	idx.Ascend(func(page int64, _ string) bool {
		pages = append(pages, page)
		return true
	})
	want := []int64{0, 1, 3, 7}
	if len(pages) != len(want) {
		t.Fatalf("遍历页面数不匹配: got %d, want %d", len(pages), len(want))
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Errorf("遍历顺序错误: 位置 %d got %d, want %d", i, pages[i], want[i])
		}
	}

	// 提前停止
	var n int
	idx.Ascend(func(page int64, _ string) bool {
		n++
		return page < 1
	})
	if n != 2 {
		t.Errorf("提前停止失败: 访问了 %d 个页面, want 2", n)
	}
}

func TestAVLIndex(t *testing.T) {
	testPageIndex(t, NewAVLIndex())
}

func TestARTIndex(t *testing.T) {
	testPageIndex(t, NewARTIndex())
}

func TestAVLIndex_BalancedAfterSequentialClaims(t *testing.T) {
	idx := NewAVLIndex()
	defer idx.Close()

	// 页号通常按升序出现，树必须保持平衡而非退化为链表
	for page := int64(0); page < 1024; page++ {
		idx.PutIfAbsent(page, "dump")
	}
	if h := idx.Tree().Height(); h > 11 {
		t.Errorf("顺序认领后树过高: %d", h)
	}
	checkBalance(t, idx.Tree().root)
}

func TestARTIndex_LargePages(t *testing.T) {
	idx := NewARTIndex()
	defer idx.Close()

	// 大页号的大端序编码必须保持升序遍历
	pages := []int64{1 << 40, 255, 256, 0, 1<<32 - 1, 1 << 32}
	for _, p := range pages {
		idx.PutIfAbsent(p, "dump")
	}

	var got []int64
	idx.Ascend(func(page int64, _ string) bool {
		got = append(got, page)
		return true
	})
	want := []int64{0, 255, 256, 1<<32 - 1, 1 << 32, 1 << 40}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("大页号遍历顺序错误: 位置 %d got %d, want %d", i, got[i], want[i])
		}
	}
}
