/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildContent(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		code string
		lang string
		want string
	}{
		{
			name: "message wins over code",
			msg:  "hello",
			code: "x := 1",
			lang: "go",
			want: "hello",
		},
		{
			name: "code is fenced",
			code: "x := 1",
			lang: "go",
			want: "```go\nx := 1\n```",
		},
		{
			name: "language is sanitized",
			code: "a",
			lang: "c++ <script>#",
			want: "```c++script#\na\n```",
		},
		{
			name: "language is limited",
			code: "a",
			lang: strings.Repeat("x", 30),
			want: "```" + strings.Repeat("x", 20) + "\na\n```",
		},
		{
			name: "quotes are mapped and line endings normalized",
			code: "say(“hi”)\r\nit’s ″ok″",
			want: "```\nsay(\"hi\")\nit's \"ok\"\n```",
		},
		{
			name: "code is NFC normalized",
			code: "e\u0301",
			want: "```\n\u00e9\n```",
		},
		{
			name: "nothing to send",
			want: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildContent(tt.msg, tt.code, tt.lang))
		})
	}
}

func TestBuildContent_LongMessage(t *testing.T) {
	msg := strings.Repeat("a", MaxContentLength)
	require.Equal(t, msg, BuildContent(msg, "", ""))

	content := BuildContent(msg+"b", "", "")
	require.Equal(t, MaxContentLength, TextLength(content))
	require.True(t, strings.HasSuffix(content, TruncatedSuffix))
	require.True(t, strings.HasPrefix(content, "aaa"))
}

func TestBuildContent_LongCode(t *testing.T) {
	content := BuildContent("", strings.Repeat("y", 3000), "js")
	require.Equal(t, MaxContentLength, TextLength(content))
	require.True(t, strings.HasPrefix(content, "```js\nyyy"))
	require.True(t, strings.HasSuffix(content, TruncatedSuffix+"\n```"))
}

func TestBuildContent_GraphemeClusters(t *testing.T) {
	family := "👨‍👩‍👧"
	msg := strings.Repeat(family, MaxContentLength)
	require.Equal(t, msg, BuildContent(msg, "", ""), "length is counted in user-perceived characters")

	content := BuildContent(msg+family, "", "")
	require.Equal(t, MaxContentLength, TextLength(content))
	require.Equal(t, strings.Repeat(family, MaxContentLength-TextLength(TruncatedSuffix))+TruncatedSuffix, content)
}
