// Package publish writes the public forecast document to external storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

// CurrentForecastKey is the object name of the published display summary.
const CurrentForecastKey = "current-forecast.json"

// Publisher stores data under key, replacing any previous object.
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte) error
}

// FileSink writes objects into a local directory.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Publish writes atomically by renaming a temporary file over the target.
func (s *FileSink) Publish(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create publish dir: %w", err)
	}
	target := filepath.Join(s.Dir, filepath.FromSlash(key))
	tmp, err := os.CreateTemp(filepath.Dir(target), ".publish-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// FTPSink uploads objects to an FTP server.
type FTPSink struct {
	Addr     string // host:port
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

func NewFTPSink(addr, user, password, dir string) *FTPSink {
	if user == "" {
		user = "anonymous"
		password = "anonymous"
	}
	return &FTPSink{Addr: addr, User: user, Password: password, Dir: dir, Timeout: 30 * time.Second}
}

func (s *FTPSink) Publish(ctx context.Context, key string, data []byte) error {
	conn, err := ftp.Dial(s.Addr, ftp.DialWithTimeout(s.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.User, s.Password); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	remote := path.Join(s.Dir, key)
	if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remote, err)
	}
	return nil
}
