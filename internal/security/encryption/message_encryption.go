package encryption

import (
	"fmt"
)

// 存儲格式前綴.
const (
	EncryptedPrefix = "aes256ctr:"
	PlaintextPrefix = "plaintext:"
)

// MessageEncryption 消息加密服務
// 使用 AES-256-CTR 加密模式 + 每頻道派生密鑰
type MessageEncryption struct {
	enabled bool
	deriver *KeyDeriver
}

// NewMessageEncryption 創建消息加密服務
func NewMessageEncryption(enabled bool, deriver *KeyDeriver) *MessageEncryption {
	if deriver == nil {
		enabled = false
	}

	return &MessageEncryption{
		enabled: enabled,
		deriver: deriver,
	}
}

// Enabled 是否啟用靜態加密
func (m *MessageEncryption) Enabled() bool {
	return m.enabled
}

// EncryptMessage 加密消息
// 未啟用時以 plaintext 前綴存儲，保留格式一致性
func (m *MessageEncryption) EncryptMessage(content string, channelID string) (string, error) {
	if !m.enabled {
		return PlaintextPrefix + content, nil
	}

	if m.deriver == nil {
		return "", fmt.Errorf("key deriver not initialized")
	}

	// 取得頻道派生密鑰
	key, err := m.deriver.ChannelKey(channelID)
	if err != nil {
		return "", fmt.Errorf("failed to get channel key: %w", err)
	}

	// 創建 AES-256-CTR 加密器
	aesCTR, err := NewAESCTREncryption(key)
	if err != nil {
		return "", fmt.Errorf("failed to create encryptor: %w", err)
	}

	// 加密訊息
	encrypted, err := aesCTR.Encrypt(content)
	if err != nil {
		return "", fmt.Errorf("encryption failed: %w", err)
	}

	return encrypted, nil
}

// DecryptMessage 解密消息
// 同時接受 plaintext 與 aes256ctr 兩種存儲格式，
// 允許啟用加密前的舊訊息繼續可讀.
func (m *MessageEncryption) DecryptMessage(storedContent string, channelID string) (string, error) {
	if len(storedContent) >= len(PlaintextPrefix) && storedContent[:len(PlaintextPrefix)] == PlaintextPrefix {
		return storedContent[len(PlaintextPrefix):], nil
	}

	if !m.IsEncrypted(storedContent) {
		// 無任何前綴的舊資料，原樣返回
		return storedContent, nil
	}

	if m.deriver == nil {
		return "", fmt.Errorf("key deriver not initialized")
	}

	// 取得頻道派生密鑰
	key, err := m.deriver.ChannelKey(channelID)
	if err != nil {
		return "", fmt.Errorf("failed to get channel key: %w", err)
	}

	// 創建 AES-256-CTR 解密器
	aesCTR, err := NewAESCTREncryption(key)
	if err != nil {
		return "", fmt.Errorf("failed to create decryptor: %w", err)
	}

	// 解密訊息
	decrypted, err := aesCTR.Decrypt(storedContent)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return decrypted, nil
}

// IsEncrypted 檢查消息是否已加密
func (m *MessageEncryption) IsEncrypted(content string) bool {
	return len(content) >= len(EncryptedPrefix) && content[:len(EncryptedPrefix)] == EncryptedPrefix
}
