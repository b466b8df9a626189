package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.edu"}
	cfg.PathContains = []string{"/mod/forum/"}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"forum page", "https://moodle.example.edu/mod/forum/view.php?id=42", false},
		{"exact host", "https://example.edu/mod/forum/view.php?id=1", false},
		{"surrounding spaces", "  https://example.edu/mod/forum/view.php  ", false},
		{"empty", "", true},
		{"http", "http://example.edu/mod/forum/view.php", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"file scheme", "file:///etc/passwd", true},
		{"no host", "https:///mod/forum/view.php", true},
		{"other host", "https://example.com/mod/forum/view.php", true},
		{"suffix lookalike", "https://badexample.edu/mod/forum/view.php", true},
		{"not a forum page", "https://example.edu/course/view.php?id=3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := cfg.ValidateURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidURL)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https", u.Scheme)
		})
	}
}

func TestValidateURL_PlainHTTPWhenAllowed(t *testing.T) {
	cfg := Config{RequireHTTPS: false}

	u, err := cfg.ValidateURL("http://localhost:8080/mod/forum/view.php")
	require.NoError(t, err)
	assert.Equal(t, "localhost", u.Hostname())
}

func TestFormIsSubmit(t *testing.T) {
	f := MoodleForm()

	assert.True(t, f.isSubmit("Post to forum"))
	assert.True(t, f.isSubmit("  post  TO forum "))
	assert.True(t, f.isSubmit("Save changes"))
	assert.False(t, f.isSubmit("Add discussion topic"))
}

func TestMoodleFormDescriptors(t *testing.T) {
	f := MoodleForm()

	assert.Equal(t, "create control", f.CreateControl.String())
	assert.Equal(t, "subject field", f.SubjectField.String())
	assert.Equal(t, "body editor", f.BodyEditor.String())
	assert.Contains(t, f.CreateControl.Names, "Add discussion topic")
}
