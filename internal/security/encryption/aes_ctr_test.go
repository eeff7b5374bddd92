package encryption

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("生成測試密鑰失敗: %v", err)
	}
	return key
}

// TestAESCTRRoundTrip 測試加密後能解回原文
func TestAESCTRRoundTrip(t *testing.T) {
	enc, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"英文", "hello world"},
		{"中文", "你好，這是一條測試訊息"},
		{"特殊字符", "line1\nline2\ttab \x01"},
		{"長訊息", strings.Repeat("長訊息測試 ", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("加密失敗: %v", err)
			}

			if !strings.HasPrefix(ciphertext, EncryptedPrefix) {
				t.Errorf("密文缺少格式前綴: %s", ciphertext)
			}

			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("解密失敗: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("解密結果不符: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

// TestAESCTREmptyPlaintext 空明文直接拒絕
func TestAESCTREmptyPlaintext(t *testing.T) {
	enc, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}

	if _, err := enc.Encrypt(""); err == nil {
		t.Error("空明文加密應報錯")
	}
}

// TestAESCTRUniqueIV 相同明文兩次加密必須產生不同密文
func TestAESCTRUniqueIV(t *testing.T) {
	enc, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}

	first, err := enc.Encrypt("重複的明文")
	if err != nil {
		t.Fatalf("加密失敗: %v", err)
	}
	second, err := enc.Encrypt("重複的明文")
	if err != nil {
		t.Fatalf("加密失敗: %v", err)
	}

	if first == second {
		t.Error("兩次加密產生相同密文，IV 未隨機化")
	}
}

// TestAESCTRKeyLength 密鑰長度必須是 32 bytes
func TestAESCTRKeyLength(t *testing.T) {
	for _, size := range []int{0, 16, 24, 31, 33, 64} {
		if _, err := NewAESCTREncryption(make([]byte, size)); err == nil {
			t.Errorf("長度 %d 的密鑰應該被拒絕", size)
		}
	}
}

// TestAESCTRWrongKey 錯誤密鑰解出的內容不等於原文
func TestAESCTRWrongKey(t *testing.T) {
	enc1, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}
	enc2, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}

	ciphertext, err := enc1.Encrypt("secret message")
	if err != nil {
		t.Fatalf("加密失敗: %v", err)
	}

	decrypted, err := enc2.Decrypt(ciphertext)
	if err == nil && decrypted == "secret message" {
		t.Error("錯誤密鑰不應解出原文")
	}
}

// TestAESCTRInvalidInput 解密異常輸入
func TestAESCTRInvalidInput(t *testing.T) {
	enc, err := NewAESCTREncryption(testKey(t))
	if err != nil {
		t.Fatalf("創建加密器失敗: %v", err)
	}

	tests := []string{
		"沒有前綴的內容",
		EncryptedPrefix + "not-base64!!!",
		EncryptedPrefix + "",
	}
	for _, input := range tests {
		if _, err := enc.Decrypt(input); err == nil {
			t.Errorf("異常輸入 %q 應該解密失敗", input)
		}
	}
}

// TestKeyDeriverPerChannel 每個頻道派生不同密鑰，同頻道結果穩定
func TestKeyDeriverPerChannel(t *testing.T) {
	master := testKey(t)

	d, err := NewKeyDeriver(master)
	if err != nil {
		t.Fatalf("創建密鑰派生器失敗: %v", err)
	}

	keyA, err := d.ChannelKey("channel-a")
	if err != nil {
		t.Fatalf("派生密鑰失敗: %v", err)
	}
	keyB, err := d.ChannelKey("channel-b")
	if err != nil {
		t.Fatalf("派生密鑰失敗: %v", err)
	}

	if len(keyA) != 32 || len(keyB) != 32 {
		t.Fatalf("派生密鑰長度錯誤: %d, %d", len(keyA), len(keyB))
	}
	if bytes.Equal(keyA, keyB) {
		t.Error("不同頻道派生出相同密鑰")
	}

	keyA2, err := d.ChannelKey("channel-a")
	if err != nil {
		t.Fatalf("派生密鑰失敗: %v", err)
	}
	if !bytes.Equal(keyA, keyA2) {
		t.Error("同頻道兩次派生結果不一致")
	}

	// 相同主密鑰的另一個派生器結果一致（密鑰可重建）
	d2, err := NewKeyDeriver(master)
	if err != nil {
		t.Fatalf("創建密鑰派生器失敗: %v", err)
	}
	keyA3, err := d2.ChannelKey("channel-a")
	if err != nil {
		t.Fatalf("派生密鑰失敗: %v", err)
	}
	if !bytes.Equal(keyA, keyA3) {
		t.Error("相同主密鑰派生結果不一致")
	}
}

// TestKeyDeriverMasterKeyLength 主密鑰長度檢查
func TestKeyDeriverMasterKeyLength(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		if _, err := NewKeyDeriver(make([]byte, size)); err == nil {
			t.Errorf("長度 %d 的主密鑰應該被拒絕", size)
		}
	}
}
