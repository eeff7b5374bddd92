package middleware

import (
	"strings"
	"testing"

	"chat-engine/internal/constants"

	"github.com/google/uuid"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"正常內容", "你好，世界", false},
		{"空字串", "", true},
		{"純空白", "   \t\n  ", true},
		{"NULL 字符", "hello\x00world", true},
		{"達到上限", strings.Repeat("a", constants.DefaultMaxMessageLength), false},
		{"超過上限", strings.Repeat("a", constants.DefaultMaxMessageLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageContent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChannelName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"正常名稱", "工程團隊", false},
		{"空字串", "", true},
		{"純空白", "   ", true},
		{"NULL 字符", "team\x00", true},
		{"超過上限", strings.Repeat("a", constants.DefaultMaxChannelNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChannelName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{"正常 ID", "user_12345", false},
		{"郵箱形式", "alice@example.com", false},
		{"空字串", "", true},
		{"NULL 字符", "user\x00", true},
		{"模板注入字符", "user${id}", true},
		{"方括號", "user[0]", true},
		{"超長", strings.Repeat("a", constants.MaxUserIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChannelID(t *testing.T) {
	if err := ValidateChannelID(uuid.New().String()); err != nil {
		t.Errorf("合法 UUID 不應報錯: %v", err)
	}

	for _, bad := range []string{"", "   ", "not-a-uuid", "12345"} {
		if err := ValidateChannelID(bad); err == nil {
			t.Errorf("ValidateChannelID(%q) 應報錯", bad)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"NULL 字符被移除", "he\x00llo", "hello"},
		{"控制字符被移除", "a\x01\x02b\x1fc", "abc"},
		{"保留換行與 Tab", "line1\n\tline2", "line1\n\tline2"},
		{"中文不受影響", "頻道名稱", "頻道名稱"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeInput(tt.input); got != tt.want {
				t.Errorf("SanitizeInput() = %q, want %q", got, tt.want)
			}
		})
	}
}
