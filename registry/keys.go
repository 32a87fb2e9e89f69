package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/sorryhyun/dipeo-engine/llm"
	"github.com/sorryhyun/dipeo-engine/memory"
)

// Key is a phantom-typed name: resolving it through Resolve[T] gives back a
// value of type T instead of `any`, per DESIGN NOTES §9 ("expose typed keys
// that resolve to the concrete capability"). Grounded on the original
// EnhancedServiceKey[T] dataclass.
type Key[T any] struct {
	Name string
}

// NewKey declares a typed key under the given registry name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{Name: name}
}

// Resolve looks up k in r and asserts the result to T.
func Resolve[T any](r *ServiceRegistry, k Key[T]) (T, error) {
	var zero T
	v, err := r.Resolve(k.Name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ErrKeyNotFound{Key: k.Name}
	}
	return typed, nil
}

// FileService is the capability backing the db handler's file operations.
type FileService interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
}

// HTTPService is the capability backing the api_job handler.
type HTTPService interface {
	Do(req *http.Request) (*http.Response, error)
}

// NotionService is the capability backing the notion/integrated_api handler.
type NotionService interface {
	Execute(ctx context.Context, operation, resourceID string, config map[string]any) (map[string]any, error)
}

// InteractiveService is the capability backing the user_response handler.
type InteractiveService interface {
	Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// Built-in keys for every capability a §6.2 handler needs.
var (
	LLMKey         = NewKey[llm.ChatModel]("llm")
	FileKey        = NewKey[FileService]("file")
	HTTPKey        = NewKey[HTTPService]("http")
	MemoryKey      = NewKey[*memory.Store]("memory")
	NotionKey      = NewKey[NotionService]("notion")
	InteractiveKey = NewKey[InteractiveService]("interactive")
)
