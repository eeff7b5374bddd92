package encryption

import (
	"strings"
	"testing"
)

// TestMessageEncryptionDisabled 未啟用時以 plaintext 前綴存儲
func TestMessageEncryptionDisabled(t *testing.T) {
	m := NewMessageEncryption(false, nil)

	if m.Enabled() {
		t.Fatal("未提供派生器時不應啟用加密")
	}

	stored, err := m.EncryptMessage("哈囉", "channel-1")
	if err != nil {
		t.Fatalf("存儲失敗: %v", err)
	}
	if stored != PlaintextPrefix+"哈囉" {
		t.Errorf("明文存儲格式錯誤: %q", stored)
	}

	content, err := m.DecryptMessage(stored, "channel-1")
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if content != "哈囉" {
		t.Errorf("讀取結果不符: %q", content)
	}
}

// TestMessageEncryptionEnabled 啟用後密文靜態存儲，按頻道解密
func TestMessageEncryptionEnabled(t *testing.T) {
	deriver, err := NewKeyDeriver(testKey(t))
	if err != nil {
		t.Fatalf("創建密鑰派生器失敗: %v", err)
	}
	m := NewMessageEncryption(true, deriver)

	stored, err := m.EncryptMessage("機密內容", "channel-1")
	if err != nil {
		t.Fatalf("加密失敗: %v", err)
	}
	if !strings.HasPrefix(stored, EncryptedPrefix) {
		t.Errorf("密文缺少格式前綴: %q", stored)
	}
	if strings.Contains(stored, "機密內容") {
		t.Error("存儲內容洩露明文")
	}

	content, err := m.DecryptMessage(stored, "channel-1")
	if err != nil {
		t.Fatalf("解密失敗: %v", err)
	}
	if content != "機密內容" {
		t.Errorf("解密結果不符: %q", content)
	}

	// 用錯誤頻道的派生密鑰解不出原文
	wrong, err := m.DecryptMessage(stored, "channel-2")
	if err == nil && wrong == "機密內容" {
		t.Error("跨頻道不應解出原文")
	}
}

// TestMessageEncryptionLegacyPassthrough 無前綴的舊數據原樣返回
func TestMessageEncryptionLegacyPassthrough(t *testing.T) {
	m := NewMessageEncryption(false, nil)

	content, err := m.DecryptMessage("早期未加前綴的訊息", "channel-1")
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if content != "早期未加前綴的訊息" {
		t.Errorf("舊數據應原樣返回: %q", content)
	}
}
