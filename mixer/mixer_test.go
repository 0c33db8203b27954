package mixer

import (
	"errors"
	"strings"
	"testing"

	"github.com/forever-free1/DumpMixer/pagelog"
)

func group(source, digest, version, base string, total int64, pages ...int64) *pagelog.PageGroup {
	return &pagelog.PageGroup{
		SourceID:   source,
		Digest:     digest,
		Version:    version,
		BaseAddr:   base,
		Pages:      pages,
		Rank:       len(pages),
		TotalPages: total,
		LogFile:    "test.log",
	}
}

// collect 把归属映射导出为 map 便于比对
func collect(result *Result) map[int64]string {
	got := make(map[int64]string)
	result.Index.Ascend(func(page int64, source string) bool {
		got[page] = source
		return true
	})
	return got
}

func TestMixer_FirstClaimWins(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "", 5, 1, 2, 3),
		group("dumpB", "d1", "v1", "", 5, 2, 3, 4),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	// 排名相同，dumpA 先出现：2、3 归 dumpA，dumpB 只贡献 4
	want := map[int64]string{1: "dumpA", 2: "dumpA", 3: "dumpA", 4: "dumpB"}
	got := collect(result)
	if len(got) != len(want) {
		t.Fatalf("认领页面数不匹配: got %d, want %d", len(got), len(want))
	}
	for page, src := range want {
		if got[page] != src {
			t.Errorf("页号 %d 归属错误: got %s, want %s", page, got[page], src)
		}
	}

	if result.TotalPages != 5 {
		t.Errorf("总页数不匹配: got %d, want 5", result.TotalPages)
	}
	if result.PagesClaimed != 4 {
		t.Errorf("认领计数不匹配: got %d, want 4", result.PagesClaimed)
	}
	if result.GroupsMerged != 2 {
		t.Errorf("参与分组数不匹配: got %d, want 2", result.GroupsMerged)
	}
}

func TestMixer_RankOrdering(t *testing.T) {
	// 小分组先出现，但大分组排名更高，应先认领
	groups := []*pagelog.PageGroup{
		group("small", "d1", "v1", "", 10, 0, 1),
		group("big", "d1", "v1", "", 10, 0, 1, 2, 3, 4),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	got := collect(result)
	for page := int64(0); page < 5; page++ {
		if got[page] != "big" {
			t.Errorf("页号 %d 应归排名更高的分组: got %s", page, got[page])
		}
	}
}

func TestMixer_Deterministic(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("a", "d1", "v1", "", 8, 0, 2, 4),
		group("b", "d1", "v1", "", 8, 1, 2, 5),
		group("c", "d1", "v1", "", 8, 4, 5, 6),
	}

	first, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}
	second, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	a, b := collect(first), collect(second)
	if len(a) != len(b) {
		t.Fatalf("两次混合认领页面数不一致: %d vs %d", len(a), len(b))
	}
	for page, src := range a {
		if b[page] != src {
			t.Errorf("页号 %d 两次混合归属不一致: %s vs %s", page, src, b[page])
		}
	}
}

func TestMixer_VersionVariantGetsSuffix(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "", 5, 0, 1),
		group("dumpB", "d2", "v2", "", 5, 2, 3),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	// 摘要与版本都不同：按变体参与认领，来源标识追加版本后缀
	got := collect(result)
	if got[2] != "dumpB@v2" {
		t.Errorf("变体来源标识不匹配: got %s, want dumpB@v2", got[2])
	}
	// 变体标识必须能映射回真实文件
	if result.Sources["dumpB@v2"] != "dumpB" {
		t.Errorf("变体来源未映射回真实文件: got %q", result.Sources["dumpB@v2"])
	}
	if result.GroupsSkipped != 0 {
		t.Errorf("不应跳过任何分组: got %d", result.GroupsSkipped)
	}
	if len(result.Warnings) == 0 {
		t.Error("摘要不一致应产生告警")
	}
}

func TestMixer_SameVersionBaseMismatchSkips(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "0x1000", 5, 0, 1),
		group("dumpB", "d1", "v1", "0x2000", 5, 2, 3),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	// 版本相同但基址不同：整组跳过
	got := collect(result)
	if len(got) != 2 {
		t.Fatalf("认领页面数不匹配: got %d, want 2", len(got))
	}
	if _, ok := got[2]; ok {
		t.Error("基址不一致的分组不应参与认领")
	}
	if result.GroupsSkipped != 1 {
		t.Errorf("跳过分组数不匹配: got %d, want 1", result.GroupsSkipped)
	}
}

func TestMixer_TotalMismatchWarns(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "", 5, 0),
		group("dumpB", "d1", "v1", "", 7, 1),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	// 第一个声明值为准
	if result.TotalPages != 5 {
		t.Errorf("总页数应取第一个声明值: got %d, want 5", result.TotalPages)
	}
	var found bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "总页数不一致") {
			found = true
		}
	}
	if !found {
		t.Errorf("总页数不一致应产生告警: %v", result.Warnings)
	}
}

func TestMixer_UnknownTotal(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "", -1, 0, 1),
	}

	result, err := New().Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}
	if result.TotalPages != -1 {
		t.Errorf("所有日志都未声明总页数时应为 -1: got %d", result.TotalPages)
	}
}

func TestMixer_NoGroups(t *testing.T) {
	if _, err := New().Mix(nil); !errors.Is(err, ErrNoGroups) {
		t.Errorf("期望 ErrNoGroups, 得到: %v", err)
	}
}

func TestMixer_ARTIndexType(t *testing.T) {
	groups := []*pagelog.PageGroup{
		group("dumpA", "d1", "v1", "", 5, 3, 1, 4),
		group("dumpB", "d1", "v1", "", 5, 0, 2),
	}

	result, err := New(WithIndexType(IndexTypeART)).Mix(groups)
	if err != nil {
		t.Fatalf("混合失败: %v", err)
	}

	// ART 索引下遍历仍按页号升序
	var pages []int64
	result.Index.Ascend(func(page int64, _ string) bool {
		pages = append(pages, page)
		return true
	})
	for i := 1; i < len(pages); i++ {
		if pages[i] <= pages[i-1] {
			t.Fatalf("ART 索引遍历乱序: %v", pages)
		}
	}
	if len(pages) != 5 {
		t.Errorf("认领页面数不匹配: got %d, want 5", len(pages))
	}
}
