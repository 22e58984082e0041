package zhihu

import "testing"

func TestInjectionAccepted(t *testing.T) {
	cases := []struct {
		name     string
		expected int
		actual   int
		want     bool
	}{
		{"exact", 1000, 1000, true},
		{"above_threshold", 1000, 900, true},
		{"at_threshold", 1000, 850, true},
		{"below_threshold", 1000, 849, false},
		{"editor_swallowed_everything", 1000, 0, false},
		{"empty_content", 0, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := injectionAccepted(c.expected, c.actual); got != c.want {
				t.Errorf("injectionAccepted(%d, %d) = %v，期望%v", c.expected, c.actual, got, c.want)
			}
		})
	}
}

func TestExtractArticleID(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		wantID string
		wantOK bool
	}{
		{"article_page", "https://zhuanlan.zhihu.com/p/714628493", "714628493", true},
		{"article_with_query", "https://zhuanlan.zhihu.com/p/123456?utm_source=x", "123456", true},
		{"edit_page", "https://zhuanlan.zhihu.com/write", "", false},
		{"signin_page", "https://www.zhihu.com/signin", "", false},
		{"empty", "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id, ok := extractArticleID(c.url)
			if ok != c.wantOK || id != c.wantID {
				t.Errorf("extractArticleID(%q) = (%q, %v)，期望(%q, %v)", c.url, id, ok, c.wantID, c.wantOK)
			}
		})
	}
}

func TestLocators(t *testing.T) {
	loc := GetLocators()
	if len(loc.Editor) == 0 {
		t.Fatal("编辑器选择器不应为空")
	}
	// 稳定的Draft.js类名必须排在通用contenteditable之前
	if loc.Editor[0] != `div.public-DraftEditor-content` {
		t.Errorf("编辑器首选选择器应为Draft.js容器，实际%s", loc.Editor[0])
	}
	last := loc.Editor[len(loc.Editor)-1]
	if last != `div[contenteditable="true"]` {
		t.Errorf("通用contenteditable应为兜底选择器，实际%s", last)
	}
}
