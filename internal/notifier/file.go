package notifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"KabuSentinel/internal/report"
)

// FileNotifier writes {name}.html, {name}_subject.txt and {name}_flag.txt
// into Dir for an external mailer to pick up. The flag is "1" when the
// message carries an alert.
type FileNotifier struct {
	Dir string
}

func (f *FileNotifier) Name() string { return "file" }

func (f *FileNotifier) Send(_ context.Context, msg *report.Message) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := msg.Name
	if name == "" {
		name = "report"
	}
	flag := "0"
	if msg.Alert {
		flag = "1"
	}
	files := []struct{ suffix, body string }{
		{".html", msg.HTML},
		{"_subject.txt", msg.Subject},
		{"_flag.txt", flag},
	}
	for _, file := range files {
		path := filepath.Join(f.Dir, name+file.suffix)
		if err := os.WriteFile(path, []byte(file.body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
