// Package instruments manages the per-session working directory the agents
// write to and exposes the session's agent functions as tools.
package instruments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/warehouse"
)

const (
	RunSQLResultsFileName = "run_sql_results.json"
	SQLQueryFileName      = "sql_query.sql"
	WriteFileName         = "write_file.txt"
	WriteJSONFileName     = "write_json_file.json"
	WriteYAMLFileName     = "write_yml_file.yml"

	RunSQLSuccessMessage     = "Successfully delivered results to json file"
	InnovationSuccessMessage = "Successfully wrote innovation file. You can check my work."
)

var (
	ErrInvalidFileName   = errors.New("instruments: invalid file name")
	ErrInvalidInnovation = errors.New("instruments: invalid innovation content")
)

type Options struct {
	BaseDir   string
	SessionID string
	Warehouse warehouse.Manager
	Logger    *slog.Logger
	// OnClose runs when the instruments are closed, e.g. to close a
	// connection pool opened for a single session.
	OnClose func() error
}

type Instruments struct {
	baseDir   string
	sessionID string
	warehouse warehouse.Manager
	log       *slog.Logger
	onClose   func() error

	mu              sync.Mutex
	messages        []agent.Chat
	innovationIndex int
	closed          bool
}

// Open prepares BaseDir/SessionID, creating it when missing and removing every
// file left from an earlier run of the same session.
func Open(_ context.Context, opts Options) (*Instruments, error) {
	if strings.TrimSpace(opts.BaseDir) == "" {
		return nil, fmt.Errorf("base dir is required")
	}
	if err := validateName(opts.SessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	in := &Instruments{
		baseDir:   opts.BaseDir,
		sessionID: opts.SessionID,
		warehouse: opts.Warehouse,
		log:       logger.With("session_id", opts.SessionID),
		onClose:   opts.OnClose,
	}
	if err := in.resetFiles(); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Instruments) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()
	if in.onClose != nil {
		return in.onClose()
	}
	return nil
}

func (in *Instruments) SessionID() string {
	return in.sessionID
}

func (in *Instruments) RootDir() string {
	return filepath.Join(in.baseDir, in.sessionID)
}

func (in *Instruments) FilePath(name string) string {
	return filepath.Join(in.RootDir(), name)
}

func (in *Instruments) AgentChatFile(team string) string {
	return in.FilePath("agent_chats_" + team + ".json")
}

func (in *Instruments) AgentCostFile(team string) string {
	return in.FilePath("agent_cost_" + team + ".json")
}

func (in *Instruments) RunSQLResultsFile() string {
	return in.FilePath(RunSQLResultsFileName)
}

func (in *Instruments) SQLQueryFile() string {
	return in.FilePath(SQLQueryFileName)
}

func (in *Instruments) InnovationFile(i int) string {
	return in.FilePath(fmt.Sprintf("%d_innovation_file.json", i))
}

func (in *Instruments) resetFiles() error {
	root := in.RootDir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("clear session file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// SyncMessages replaces the conversation the orchestrator has seen so far.
func (in *Instruments) SyncMessages(messages []agent.Chat) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.messages = append([]agent.Chat(nil), messages...)
}

func (in *Instruments) Messages() []agent.Chat {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]agent.Chat(nil), in.messages...)
}

type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (in *Instruments) Files() ([]FileInfo, error) {
	return ListSessionFiles(in.baseDir, in.sessionID)
}

// ListSessionFiles lists the regular files of a session directory by name.
func ListSessionFiles(baseDir, sessionID string) ([]FileInfo, error) {
	if err := validateName(sessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(baseDir, sessionID))
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// SessionFilePath resolves a file inside a session directory, rejecting names
// that would escape it.
func SessionFilePath(baseDir, sessionID, name string) (string, error) {
	if err := validateName(sessionID); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	if err := validateName(name); err != nil {
		return "", fmt.Errorf("file name: %w", err)
	}
	return filepath.Join(baseDir, sessionID, name), nil
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return ErrInvalidFileName
	case strings.ContainsAny(name, `/\`):
		return ErrInvalidFileName
	}
	return nil
}
