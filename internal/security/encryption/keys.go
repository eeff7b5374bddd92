package encryption

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeyDeriver 以主密鑰派生每個頻道的獨立加密密鑰.
// 使用 HKDF-SHA256，頻道 ID 作為 info 參數，
// 單一頻道密鑰外洩不影響其他頻道.
type KeyDeriver struct {
	masterKey []byte

	mu    sync.RWMutex
	cache map[string][]byte // channelID -> derived key
}

// NewKeyDeriver 創建密鑰派生器
func NewKeyDeriver(masterKey []byte) (*KeyDeriver, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (256 bits), got %d bytes", len(masterKey))
	}

	keyCopy := make([]byte, len(masterKey))
	copy(keyCopy, masterKey)

	return &KeyDeriver{
		masterKey: keyCopy,
		cache:     make(map[string][]byte),
	}, nil
}

// ChannelKey 取得頻道的派生密鑰
// 派生結果確定性，相同頻道永遠得到同一把密鑰.
func (d *KeyDeriver) ChannelKey(channelID string) ([]byte, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel ID cannot be empty")
	}

	d.mu.RLock()
	if key, ok := d.cache[channelID]; ok {
		d.mu.RUnlock()
		return key, nil
	}
	d.mu.RUnlock()

	// HKDF-SHA256: salt 固定，info 帶入頻道 ID 作為領域分隔
	reader := hkdf.New(sha256.New, d.masterKey, []byte("chat-engine-channel-key"), []byte(channelID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive channel key: %w", err)
	}

	d.mu.Lock()
	d.cache[channelID] = key
	d.mu.Unlock()

	return key, nil
}
