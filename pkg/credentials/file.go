package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/marmos91/sws/internal/logger"
)

// FileStore is a Store loaded once from a password file and a permissions
// file.
//
// The password file holds one "username secret" pair per line. The
// permissions file holds whitespace separated "path:user1,user2" tokens. In
// both, the first occurrence of a key wins.
type FileStore struct {
	mem *MemoryStore
}

// LoadFileStore reads both files. A missing file is logged and treated as
// empty; any other read error is returned.
func LoadFileStore(passwdFile, permissionsFile string) (*FileStore, error) {
	mem := NewMemoryStore()

	if err := loadFile(passwdFile, func(r io.Reader) error {
		return parsePasswords(r, mem.Passwords)
	}); err != nil {
		return nil, err
	}

	if err := loadFile(permissionsFile, func(r io.Reader) error {
		return parsePermissions(r, mem.Permissions)
	}); err != nil {
		return nil, err
	}

	logger.Debug("Loaded %d users and %d protected paths", len(mem.Passwords), len(mem.Permissions))
	return &FileStore{mem: mem}, nil
}

func loadFile(path string, parse func(io.Reader) error) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Credential file %s not found, continuing without it", path)
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := parse(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func parsePasswords(r io.Reader, out map[string]string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if _, seen := out[fields[0]]; !seen {
			out[fields[0]] = fields[1]
		}
	}
	return sc.Err()
}

func parsePermissions(r io.Reader, out map[string][]string) error {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		path, list, ok := strings.Cut(sc.Text(), ":")
		if !ok || path == "" {
			continue
		}
		if _, seen := out[path]; seen {
			continue
		}
		users := []string{}
		for _, u := range strings.Split(list, ",") {
			if u != "" {
				users = append(users, u)
			}
		}
		out[path] = users
	}
	return sc.Err()
}

func (s *FileStore) Password(user string) (string, bool) {
	return s.mem.Password(user)
}

func (s *FileStore) AllowedUsers(path string) ([]string, bool) {
	return s.mem.AllowedUsers(path)
}
