package template

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

// TestExtractPlaceholders はプレースホルダ抽出を検証する。
func TestExtractPlaceholders(t *testing.T) {
	t.Parallel()

	t.Run("件名と本文のトークンを重複なしで抽出できること", func(t *testing.T) {
		t.Parallel()

		got := ExtractPlaceholders("Hi {{name}}", "Welcome {{ name }}! code={{otp}}")
		want := []string{"name", "otp"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractPlaceholders() = %v, want %v", got, want)
		}
	})

	t.Run("トークン内部の空白が除去されること", func(t *testing.T) {
		t.Parallel()

		got := ExtractPlaceholders("{{ first name }}", "{{user . email}}")
		want := []string{"firstname", "user.email"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExtractPlaceholders() = %v, want %v", got, want)
		}
	})

	t.Run("トークンが無い場合は空スライスを返すこと", func(t *testing.T) {
		t.Parallel()

		got := ExtractPlaceholders("subject", "body {{}} {name}")
		if len(got) != 0 {
			t.Errorf("ExtractPlaceholders() = %v, want empty", got)
		}
	})
}

// TestNormalize はテンプレートの正規化を検証する。
func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize("Hi {{ first name }}, see {{ exam.totalMarks }}")
	want := "Hi {{firstname}}, see {{exam.totalMarks}}"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

// TestFlatten はプレースホルダ値の平坦化を検証する。
func TestFlatten(t *testing.T) {
	t.Parallel()

	t.Run("ネストしたマップがドット区切りキーに展開されること", func(t *testing.T) {
		t.Parallel()

		v := Map(map[string]*Value{
			"name": String("Ann"),
			"exam": Map(map[string]*Value{
				"score": Int(90),
				"meta":  Map(map[string]*Value{"passed": Bool(true)}),
			}),
			"tags": List(String("go"), String("mail")),
		})

		got, err := Flatten(v)
		if err != nil {
			t.Fatalf("Flatten()でエラーが発生: %v", err)
		}
		want := map[string]string{
			"name":             "Ann",
			"exam.score":       "90",
			"exam.meta.passed": "true",
			"tags.0":           "go",
			"tags.1":           "mail",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Flatten() = %v, want %v", got, want)
		}
	})

	t.Run("nilの場合は空マップを返すこと", func(t *testing.T) {
		t.Parallel()

		got, err := Flatten(nil)
		if err != nil {
			t.Fatalf("Flatten()でエラーが発生: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Flatten() = %v, want empty", got)
		}
	})

	t.Run("循環参照を検出すること", func(t *testing.T) {
		t.Parallel()

		root := Map(nil)
		child := Map(nil)
		root.Set("child", child)
		child.Set("parent", root)

		if _, err := Flatten(root); !errors.Is(err, ErrCircularReference) {
			t.Errorf("Flatten() error = %v, want ErrCircularReference", err)
		}
	})

	t.Run("同じ値を複数箇所から参照しても循環とはみなさないこと", func(t *testing.T) {
		t.Parallel()

		shared := Map(map[string]*Value{"v": String("x")})
		root := Map(map[string]*Value{"a": shared, "b": shared})

		got, err := Flatten(root)
		if err != nil {
			t.Fatalf("Flatten()でエラーが発生: %v", err)
		}
		if got["a.v"] != "x" || got["b.v"] != "x" {
			t.Errorf("Flatten() = %v", got)
		}
	})
}

// TestRender はレンダリングを検証する。
func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("不足しているプレースホルダが報告されること", func(t *testing.T) {
		t.Parallel()

		values := Map(map[string]*Value{"name": String("A")})
		_, err := Render("Hi {{name}}", "code {{otp}}", []string{"name", "otp"}, values)

		var missing *MissingPlaceholdersError
		if !errors.As(err, &missing) {
			t.Fatalf("Render() error = %v, want MissingPlaceholdersError", err)
		}
		if !reflect.DeepEqual(missing.Keys, []string{"otp"}) {
			t.Errorf("Keys = %v, want [otp]", missing.Keys)
		}
	})

	t.Run("全てのトークンが置換されること", func(t *testing.T) {
		t.Parallel()

		values := Map(map[string]*Value{"name": String("Ann")})
		got, err := Render("Hi {{name}}", "Welcome {{name}}!", []string{"name"}, values)
		if err != nil {
			t.Fatalf("Render()でエラーが発生: %v", err)
		}
		if got.Subject != "Hi Ann" {
			t.Errorf("Subject = %q, want %q", got.Subject, "Hi Ann")
		}
		if got.Body != "Welcome Ann!" {
			t.Errorf("Body = %q, want %q", got.Body, "Welcome Ann!")
		}
	})

	t.Run("値に含まれるトークンは再展開されないこと", func(t *testing.T) {
		t.Parallel()

		values := Map(map[string]*Value{
			"name":   String("{{secret}}"),
			"secret": String("leaked"),
		})
		got, err := Render("Hi {{name}}", "", []string{"name"}, values)
		if err != nil {
			t.Fatalf("Render()でエラーが発生: %v", err)
		}
		if got.Subject != "Hi {{secret}}" {
			t.Errorf("Subject = %q, want %q", got.Subject, "Hi {{secret}}")
		}
	})

	t.Run("循環参照はErrCircularReferenceになること", func(t *testing.T) {
		t.Parallel()

		root := Map(nil)
		root.Set("self", root)
		if _, err := Render("x", "y", nil, root); !errors.Is(err, ErrCircularReference) {
			t.Errorf("Render() error = %v, want ErrCircularReference", err)
		}
	})
}

// TestValueJSON はValueのJSON変換を検証する。
func TestValueJSON(t *testing.T) {
	t.Parallel()

	t.Run("数値の表記が保持されること", func(t *testing.T) {
		t.Parallel()

		var v Value
		if err := json.Unmarshal([]byte(`{"price": 1200, "rate": 0.5, "user": {"name": "Ann"}, "n": null}`), &v); err != nil {
			t.Fatalf("Unmarshalに失敗: %v", err)
		}
		flat, err := Flatten(&v)
		if err != nil {
			t.Fatalf("Flatten()でエラーが発生: %v", err)
		}
		if flat["price"] != "1200" {
			t.Errorf("price = %q, want 1200", flat["price"])
		}
		if flat["rate"] != "0.5" {
			t.Errorf("rate = %q, want 0.5", flat["rate"])
		}
		if flat["user.name"] != "Ann" {
			t.Errorf("user.name = %q, want Ann", flat["user.name"])
		}
		if got, ok := flat["n"]; !ok || got != "" {
			t.Errorf("n = %q (ok=%v), want empty string", got, ok)
		}
	})

	t.Run("循環参照を含む値はエンコードできないこと", func(t *testing.T) {
		t.Parallel()

		root := Map(nil)
		root.Set("self", root)
		if _, err := json.Marshal(root); !errors.Is(err, ErrCircularReference) {
			t.Errorf("Marshal() error = %v, want ErrCircularReference", err)
		}
	})

	t.Run("配列と真偽値が正しくエンコードされること", func(t *testing.T) {
		t.Parallel()

		src := Map(map[string]*Value{"a": List(Int(1), Bool(false))})
		data, err := json.Marshal(src)
		if err != nil {
			t.Fatalf("Marshalに失敗: %v", err)
		}
		if string(data) != `{"a":[1,false]}` {
			t.Errorf("Marshal() = %s", data)
		}
	})
}

// TestValueWith は上書きしたマップの複製を検証する。
func TestValueWith(t *testing.T) {
	t.Parallel()

	t.Run("上書きした値が使われ元のマップは変わらないこと", func(t *testing.T) {
		t.Parallel()

		src := Map(map[string]*Value{"name": String("Ann"), "appname": String("old")})
		merged := src.With(map[string]*Value{"appname": String("Notifly")})

		flat, err := Flatten(merged)
		if err != nil {
			t.Fatalf("Flatten()でエラーが発生: %v", err)
		}
		if flat["name"] != "Ann" || flat["appname"] != "Notifly" {
			t.Errorf("flat = %v", flat)
		}
		if got, _ := src.Get("appname"); got.scalarText() != "old" {
			t.Errorf("元のマップが変更された: %q", got.scalarText())
		}
	})

	t.Run("nilの場合は上書き値だけのマップになること", func(t *testing.T) {
		t.Parallel()

		var src *Value
		merged := src.With(map[string]*Value{"year": Int(2026)})
		if merged.Kind() != KindMap || merged.Len() != 1 {
			t.Errorf("With() = %+v", merged)
		}
	})
}
