package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// AESCTREncryption AES-256-CTR 加密實現
// CTR 模式特點：
// - 將塊密碼轉換為流密碼
// - 可並行加密/解密
// - 不需要填充
type AESCTREncryption struct {
	key []byte // 256-bit (32 bytes) key
}

// NewAESCTREncryption 創建 AES-256-CTR 加密實例
func NewAESCTREncryption(key []byte) (*AESCTREncryption, error) {
	// 驗證密鑰長度必須是 32 bytes (256 bits)
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	// 防禦性複製密鑰
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &AESCTREncryption{
		key: keyCopy,
	}, nil
}

// Encrypt 加密數據
// 格式: "aes256ctr:" + base64(IV + ciphertext)
func (e *AESCTREncryption) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	// 創建 AES cipher block
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintextBytes := []byte(plaintext)

	// 創建密文緩衝區（與明文同樣大小）
	ciphertext := make([]byte, len(plaintextBytes))

	// 生成隨機 IV，每條訊息獨立
	// CTR 模式 IV 長度等於 block size (16 bytes for AES)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// 創建 CTR 模式加密器
	stream := cipher.NewCTR(block, iv)

	// 加密數據
	stream.XORKeyStream(ciphertext, plaintextBytes)

	// 將 IV 和密文組合（IV 在前）
	result := make([]byte, aes.BlockSize+len(ciphertext))
	copy(result[:aes.BlockSize], iv)
	copy(result[aes.BlockSize:], ciphertext)

	// Base64 編碼以便存儲和傳輸
	encoded := base64.StdEncoding.EncodeToString(result)

	return EncryptedPrefix + encoded, nil
}

// Decrypt 解密數據
func (e *AESCTREncryption) Decrypt(encryptedText string) (string, error) {
	if encryptedText == "" {
		return "", fmt.Errorf("encrypted text cannot be empty")
	}

	// 檢查格式前綴
	if len(encryptedText) < len(EncryptedPrefix) || encryptedText[:len(EncryptedPrefix)] != EncryptedPrefix {
		return "", fmt.Errorf("invalid ciphertext format: missing %q prefix", EncryptedPrefix)
	}

	// 移除前綴並 Base64 解碼
	encoded := encryptedText[len(EncryptedPrefix):]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	// 檢查數據長度（至少要有 IV）
	if len(data) < aes.BlockSize {
		return "", fmt.Errorf("ciphertext too short: must be at least %d bytes", aes.BlockSize)
	}

	// 創建 AES cipher block
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	// 提取 IV 和密文
	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]

	// 創建明文緩衝區
	plaintext := make([]byte, len(ciphertext))

	// 創建 CTR 模式解密器
	stream := cipher.NewCTR(block, iv)

	// 解密數據
	stream.XORKeyStream(plaintext, ciphertext)

	return string(plaintext), nil
}

// IsEncrypted 檢查文本是否已加密
func (e *AESCTREncryption) IsEncrypted(text string) bool {
	return len(text) >= len(EncryptedPrefix) && text[:len(EncryptedPrefix)] == EncryptedPrefix
}
