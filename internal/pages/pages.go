// Package pages はログイン・登録・保護ページのHTMLテンプレートを提供します。
package pages

import (
	"embed"
	"html/template"
)

// テンプレート名（gin の c.HTML に渡す名前）です。
const (
	Login    = "login.html"
	Register = "register.html"
	Index    = "index.html"
)

//go:embed templates/*.html templates/*.tmpl
var templateFS embed.FS

// Templates は埋め込みテンプレートを解析して返します。
// gin.Engine.SetHTMLTemplate に渡して使います。
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html", "templates/*.tmpl"))
}
