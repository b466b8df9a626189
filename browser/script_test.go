package browser

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var markupLine = regexp.MustCompile(`const markup = (.*);`)

func TestInsertRichScript(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"plain markup", "<h2>What I Understand</h2>\n<p>RAG</p>"},
		{"quotes and backslashes", `<p>say "hi" \ bye</p>`},
		{"script breakout attempt", "\";alert(1);//</script>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := InsertRichScript(tt.markup)

			m := markupLine.FindStringSubmatch(script)
			require.Len(t, m, 2)
			var got string
			require.NoError(t, json.Unmarshal([]byte(m[1]), &got))
			assert.Equal(t, tt.markup, got)
			assert.NotContains(t, script, markupPlaceholder)
		})
	}
}
