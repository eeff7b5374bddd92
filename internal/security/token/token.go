package token

import (
	"chat-engine/internal/errs"

	"github.com/golang-jwt/jwt/v5"
)

// Principal 已驗證的使用者身份.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// Claims JWT 自定義聲明.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolver 解析並驗證 bearer token.
type Resolver struct {
	secret []byte
}

// NewResolver 創建 token 解析器.
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve 驗證 token 字串並返回使用者身份.
// 簽名無效、過期或演算法不符都返回 UNAUTHENTICATED 錯誤.
func (r *Resolver) Resolve(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, errs.Unauthenticated("未提供認證 token")
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.Unauthenticated("不支持的簽名方法")
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnauthenticated, "token 驗證失敗", err)
	}
	if !tok.Valid {
		return nil, errs.Unauthenticated("無效的 token")
	}

	userID := claims.UserID
	if userID == "" {
		// 舊版 token 將使用者 ID 放在 subject
		userID = claims.Subject
	}
	if userID == "" {
		return nil, errs.Unauthenticated("token 缺少使用者身份")
	}

	return &Principal{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
