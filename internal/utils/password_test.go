package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// PasswordTestSuite 密码工具测试套件
type PasswordTestSuite struct {
	suite.Suite
}

// 测试密码哈希
func (suite *PasswordTestSuite) TestHashPassword() {
	password := "MySecurePassword123!"

	hash, err := HashPassword(password)
	suite.NoError(err)
	suite.NotEmpty(hash)
	suite.NotEqual(password, hash)

	// 哈希应该是argon2id格式
	suite.True(strings.HasPrefix(hash, "$argon2id$"))
	suite.Contains(hash, "v=")
	suite.Contains(hash, "m=")
	suite.Contains(hash, "t=")
	suite.Contains(hash, "p=")
}

// 测试相同密码生成不同哈希
func (suite *PasswordTestSuite) TestHashPasswordUniqueness() {
	password := "SamePassword123"

	hash1, err1 := HashPassword(password)
	hash2, err2 := HashPassword(password)

	suite.NoError(err1)
	suite.NoError(err2)
	// 相同密码应该生成不同的哈希（因为salt不同）
	suite.NotEqual(hash1, hash2)
}

// 测试密码验证
func (suite *PasswordTestSuite) TestVerifyPassword() {
	password := "CorrectPassword456"
	hash, _ := HashPassword(password)

	valid, err := VerifyPassword(password, hash)
	suite.NoError(err)
	suite.True(valid)

	invalid, err := VerifyPassword("WrongPassword", hash)
	suite.NoError(err)
	suite.False(invalid)

	// 大小写敏感
	invalidCase, err := VerifyPassword("correctpassword456", hash)
	suite.NoError(err)
	suite.False(invalidCase)
}

// 测试空密码（房间可以不设密码，但设了空串也要能验证）
func (suite *PasswordTestSuite) TestEmptyPassword() {
	hash, err := HashPassword("")
	suite.NoError(err)
	suite.NotEmpty(hash)

	valid, err := VerifyPassword("", hash)
	suite.NoError(err)
	suite.True(valid)

	invalid, err := VerifyPassword("notEmpty", hash)
	suite.NoError(err)
	suite.False(invalid)
}

// 测试特殊字符密码
func (suite *PasswordTestSuite) TestSpecialCharacterPassword() {
	passwords := []string{
		"P@$$w0rd!",
		"密码123",
		"Tab\tSpace New\nLine",
		"Quote'Double\"Quote",
	}

	for _, password := range passwords {
		hash, err := HashPassword(password)
		suite.NoError(err)
		suite.NotEmpty(hash)

		valid, err := VerifyPassword(password, hash)
		suite.NoError(err)
		suite.True(valid, "密码 %s 应该验证成功", password)
	}
}

// 测试无效哈希验证
func (suite *PasswordTestSuite) TestVerifyPasswordWithInvalidHash() {
	valid, err := VerifyPassword("password", "invalid-hash")
	suite.Error(err)
	suite.False(valid)

	valid, err = VerifyPassword("password", "")
	suite.Error(err)
	suite.False(valid)

	valid, err = VerifyPassword("password", "$argon2$invalid$format")
	suite.Error(err)
	suite.False(valid)
}

// 测试生成随机字符串
func (suite *PasswordTestSuite) TestGenerateRandomString() {
	lengths := []int{8, 16, 24, 32}

	for _, length := range lengths {
		str, err := GenerateRandomString(length)
		suite.NoError(err)
		suite.Equal(length, len(str))

		for _, char := range str {
			isValid := (char >= 'A' && char <= 'Z') ||
				(char >= 'a' && char <= 'z') ||
				(char >= '0' && char <= '9') ||
				char == '-' || char == '_' || char == '='
			suite.True(isValid, "字符 %c 不是有效的base64 URL字符", char)
		}
	}
}

// 测试生成随机字符串的唯一性
func (suite *PasswordTestSuite) TestGenerateRandomStringUniqueness() {
	generated := make(map[string]bool)

	for i := 0; i < 100; i++ {
		str, err := GenerateRandomString(16)
		suite.NoError(err)
		suite.False(generated[str], "不应该生成重复的字符串")
		generated[str] = true
	}
}

func TestPasswordSuite(t *testing.T) {
	suite.Run(t, new(PasswordTestSuite))
}
