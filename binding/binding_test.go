package binding

import "testing"

func TestInterpolate(t *testing.T) {
	data := map[string]interface{}{
		"user": map[string]interface{}{
			"name": "张三",
			"tags": []interface{}{"a", "b"},
		},
		"price": 3.14159,
	}

	cases := []struct {
		in   string
		want string
	}{
		{"你好，${user.name}", "你好，张三"},
		{"第一个标签：${user.tags[0]}", "第一个标签：a"},
		{"价格：${price|%.2f}", "价格：3.14"},
		{"缺失路径保持原样：${user.missing}", "缺失路径保持原样：${user.missing}"},
		{"没有占位符", "没有占位符"},
	}
	for _, c := range cases {
		if got := Interpolate(c.in, data); got != c.want {
			t.Fatalf("插值结果错误: in=%q got=%q want=%q", c.in, got, c.want)
		}
	}
}

func TestInterpolateNilData(t *testing.T) {
	in := "保持 ${anything} 原样"
	if got := Interpolate(in, nil); got != in {
		t.Fatalf("data 为空时应原样返回: got=%q", got)
	}
}

func TestInterpolateIndexOutOfRange(t *testing.T) {
	data := map[string]interface{}{"xs": []interface{}{"only"}}
	in := "${xs[3]}"
	if got := Interpolate(in, data); got != in {
		t.Fatalf("越界下标应保持原占位符: got=%q", got)
	}
}
