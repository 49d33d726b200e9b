package room

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet 房间码字符集
// 去掉易混淆的 0/O、1/I/L，口头传码不出错
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// CodeLength 房间码长度
const CodeLength = 6

// GenerateCode 生成房间码
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// IsCode 检查标识符是否符合房间码的字符类
func IsCode(identifier string) bool {
	if len(identifier) != CodeLength {
		return false
	}
	for i := 0; i < len(identifier); i++ {
		found := false
		for j := 0; j < len(codeAlphabet); j++ {
			if identifier[i] == codeAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
