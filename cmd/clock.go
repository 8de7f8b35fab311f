package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jsbridge/jsbridge/internal/apps"
	"github.com/jsbridge/jsbridge/internal/jschain"
)

const clockHTML = `<html>
<head><title>Clock</title></head>
<body>
<p id="time">TIME</p>
<button id="reset" onclick="server.reset()">Reset</button>
</body>
</html>`

// clockApp is the built-in demo: a page showing elapsed seconds, driven by
// a server loop writing into the DOM, with a reset button calling back into
// the server.
func clockApp(js *jschain.Root) *apps.Binding {
	b := apps.New()
	b.SetHTML(clockHTML)

	var mu sync.Mutex
	start := time.Now()

	b.Register("reset", func(args []any) (any, error) {
		mu.Lock()
		start = time.Now()
		mu.Unlock()
		err := js.Get("dom").Get("time").Set("innerHTML", "0.0")
		return nil, err
	})

	b.RegisterMain(func(ctx context.Context, js *jschain.Root) {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				since := time.Since(start)
				mu.Unlock()
				elapsed := fmt.Sprintf("%.1f", since.Seconds())
				if err := js.Get("dom").Get("time").Set("innerHTML", elapsed); err != nil {
					return
				}
			}
		}
	})

	return b
}
