// Package build runs esbuild builds with context cancellation and converts
// esbuild diagnostics into Go errors.
package build

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// BareImportFilter matches package imports: not relative, not absolute and
// without a scheme such as node: or https:.
const BareImportFilter = `^[@a-zA-Z0-9_][^:]*$`

var bareImportRe = regexp.MustCompile(BareImportFilter)

// IsBareImport reports whether path is a package import.
func IsBareImport(path string) bool {
	return bareImportRe.MatchString(path)
}

// DefaultLoaders maps static asset extensions to the file loader.
func DefaultLoaders() map[string]api.Loader {
	return map[string]api.Loader{
		".png":   api.LoaderFile,
		".jpg":   api.LoaderFile,
		".jpeg":  api.LoaderFile,
		".gif":   api.LoaderFile,
		".svg":   api.LoaderFile,
		".webp":  api.LoaderFile,
		".ico":   api.LoaderFile,
		".woff":  api.LoaderFile,
		".woff2": api.LoaderFile,
		".ttf":   api.LoaderFile,
	}
}

// Error carries the esbuild messages of a failed build.
type Error struct {
	Messages []api.Message
}

func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		lines = append(lines, FormatMessage(msg))
	}
	return fmt.Sprintf("build failed with %d error(s): %s", len(e.Messages), strings.Join(lines, "; "))
}

// FormatMessage renders a message as file:line:col: text.
func FormatMessage(msg api.Message) string {
	text := msg.Text
	if msg.PluginName != "" {
		text = "[plugin " + msg.PluginName + "] " + text
	}
	if msg.Location == nil || msg.Location.File == "" {
		return text
	}
	if msg.Location.Line == 0 {
		return fmt.Sprintf("%s: %s", msg.Location.File, text)
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, text)
}

// Run performs a single build, cancelling it when ctx is done. A build with
// errors returns its result alongside an *Error.
func Run(ctx context.Context, opts api.BuildOptions) (api.BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return api.BuildResult{}, err
	}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return api.BuildResult{}, &Error{Messages: cerr.Errors}
	}
	defer bctx.Dispose()

	stop := context.AfterFunc(ctx, bctx.Cancel)
	defer stop()

	result := bctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(result.Errors) > 0 {
		return result, &Error{Messages: result.Errors}
	}
	return result, nil
}
