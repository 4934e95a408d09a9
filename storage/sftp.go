package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aikara/image-vault/database/models"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// FileTransferConfig SFTP 非敏感参数
type FileTransferConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	RemotePath string `mapstructure:"remote_path"`
}

// FileTransferCredentials SFTP 凭据，密码和私钥二选一
type FileTransferCredentials struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	PrivateKey string `mapstructure:"private_key"`
}

// fileTransfer SFTP 文件传输后端。
// 每次操作独立建连，连接与凭据只存活于单次调用的栈帧内。
type fileTransfer struct {
	config FileTransferConfig
	creds  FileTransferCredentials
}

// newFileTransfer 创建 file-transfer 后端
func newFileTransfer(cfg FileTransferConfig, creds FileTransferCredentials) (Backend, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("file-transfer host is required")
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("file-transfer username is required")
	}
	if creds.Password == "" && creds.PrivateKey == "" {
		return nil, fmt.Errorf("file-transfer requires a password or private key")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	return &fileTransfer{config: cfg, creds: creds}, nil
}

// authMethods 组装 SSH 认证方式
func (s *fileTransfer) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if s.creds.Password != "" {
		methods = append(methods, ssh.Password(s.creds.Password))
	}
	if s.creds.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(s.creds.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	return methods, nil
}

// connect 建立 SFTP 会话，超时从 ctx 推导
func (s *fileTransfer) connect(ctx context.Context) (*sftp.Client, func(), error) {
	methods, err := s.authMethods()
	if err != nil {
		return nil, nil, err
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	sshConfig := &ssh.ClientConfig{
		User: s.creds.Username,
		Auth: methods,
		// 主机密钥指纹校验由部署侧网络边界保证
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake failed: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}

	cleanup := func() {
		client.Close()
		sshClient.Close()
	}
	return client, cleanup, nil
}

// remotePath 拼接远端路径
func (s *fileTransfer) remotePath(storagePath string) string {
	return path.Join(s.config.RemotePath, storagePath)
}

// Upload 上传文件。Create 截断已有文件，同路径重传为覆盖写。
func (s *fileTransfer) Upload(ctx context.Context, storagePath string, file io.Reader, size int64, contentType string) (string, error) {
	client, cleanup, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer cleanup()

	remote := s.remotePath(storagePath)

	err = runWithContext(ctx, func() error {
		if err := client.MkdirAll(path.Dir(remote)); err != nil {
			return fmt.Errorf("failed to create remote directory: %w", err)
		}
		f, err := client.Create(remote)
		if err != nil {
			return fmt.Errorf("failed to create remote file: %w", err)
		}
		defer f.Close()

		if _, err := io.Copy(f, file); err != nil {
			return fmt.Errorf("failed to write remote file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return storagePath, nil
}

// Delete 删除文件，不存在视为成功
func (s *fileTransfer) Delete(ctx context.Context, storagePath string) error {
	client, cleanup, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	remote := s.remotePath(storagePath)

	err = runWithContext(ctx, func() error {
		return client.Remove(remote)
	})
	if err != nil && !isSFTPNotExist(err) {
		return fmt.Errorf("failed to delete remote file %s: %w", storagePath, err)
	}
	return nil
}

// isSFTPNotExist 判断是否为文件不存在错误
func isSFTPNotExist(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such file")
}

// TestConnection 对根目录做一次 Stat，只读
func (s *fileTransfer) TestConnection(ctx context.Context) error {
	client, cleanup, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	root := s.config.RemotePath
	if root == "" {
		root = "."
	}
	return runWithContext(ctx, func() error {
		_, err := client.Stat(root)
		return err
	})
}

func (s *fileTransfer) Kind() models.ProviderType {
	return models.ProviderFileTransfer
}
