package model

// Button 内联按钮：URL、Web App 与回调 token 三选一。
type Button struct {
	Label     string `json:"label"`
	URL       string `json:"url,omitempty"`
	WebAppURL string `json:"web_app_url,omitempty"`
	Callback  string `json:"callback,omitempty"`
}

// Keyboard 按行组织的按钮。
type Keyboard [][]Button

// Row 便于构造单行键盘。
func Row(buttons ...Button) []Button { return buttons }
