package mirror

import "testing"

func TestObjectKeyNormalization(t *testing.T) {
	cases := []struct {
		key, path, want string
	}{
		{"vue_abc", "src/App.vue", "vue_abc/src/App.vue"},
		{"vue_abc", "/leading/slash.js", "vue_abc/leading/slash.js"},
		{" html_x ", " index.html ", "html_x/index.html"},
	}
	for _, c := range cases {
		if got := objectKey(c.key, c.path); got != c.want {
			t.Fatalf("objectKey(%q, %q) = %q, want %q", c.key, c.path, got, c.want)
		}
	}
}

func TestNewS3StoreValidation(t *testing.T) {
	if _, err := NewS3Store(S3Config{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := NewS3Store(S3Config{Endpoint: "minio:9000"}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
	if _, err := NewS3Store(S3Config{
		Endpoint:  "minio:9000",
		AccessKey: "ak",
		SecretKey: "sk",
	}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}
