// Package credential 管理按 (平台, 用户名) 持久化的登录Cookie
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cookie 单个Cookie记录，文件格式为此结构的JSON数组
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HttpOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Store 文件型凭据存储，每个 (平台, 用户名) 一个JSON文件
// 仅在确认登录成功后写入，之后只读，直到下次登录成功覆盖
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// FilePath 返回凭据文件路径
func (s *Store) FilePath(platform, username string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_%s.json", platform, username))
}

// Save 写入凭据，先写临时文件再重命名，避免写一半的文件被读到
func (s *Store) Save(platform, username string, cookies []Cookie) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("create cookie directory failed: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies failed: %w", err)
	}

	path := s.FilePath(platform, username)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cookie file failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cookie file failed: %w", err)
	}
	return nil
}

// Load 读取凭据
func (s *Store) Load(platform, username string) ([]Cookie, error) {
	data, err := os.ReadFile(s.FilePath(platform, username))
	if err != nil {
		return nil, fmt.Errorf("read cookie file failed: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookie file failed: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("cookie file is empty")
	}
	return cookies, nil
}

// Has 判断凭据文件是否存在且非空
func (s *Store) Has(platform, username string) bool {
	info, err := os.Stat(s.FilePath(platform, username))
	return err == nil && info.Size() > 2
}

// SavedAt 返回凭据的保存时间
func (s *Store) SavedAt(platform, username string) (time.Time, error) {
	info, err := os.Stat(s.FilePath(platform, username))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Delete 删除凭据文件，用于重新登录前清理
func (s *Store) Delete(platform, username string) error {
	err := os.Remove(s.FilePath(platform, username))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
