package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"time"

	"go_certmgr/internal/model"

	"gorm.io/gorm"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// CertificateRenderer renders the public certificate page from final
// certificate state. It is a pure downstream reader and never mutates
// certificate records.
type CertificateRenderer struct {
	db        *gorm.DB
	templates *template.Template
}

// NewCertificateRenderer creates a certificate page renderer
func NewCertificateRenderer(db *gorm.DB) (*CertificateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &CertificateRenderer{
		db:        db,
		templates: tmpl,
	}, nil
}

// PageData holds data for the valid certificate template
type PageData struct {
	CompanyName     string
	FullName        string
	CourseName      string
	CourseOrg       string
	CourseNumber    string
	DateIssued      string
	CertificateID   string
	VerifyURL       string
	DocumentTitle   string
	MetaDescription string
}

// htmlConfig mirrors the JSON stored in certificate_html_configs
type htmlConfig struct {
	CompanyName           string `json:"company_name"`
	VerifyURLPrefix       string `json:"certificate_verify_url_prefix"`
	VerifyURLSuffix       string `json:"certificate_verify_url_suffix"`
	PlatformName          string `json:"platform_name"`
	DocumentTitleTemplate string `json:"document_title_template"`
}

// RenderValid renders the certificate page for a downloadable
// certificate. Callers must have verified the status; any other state
// renders the invalid page instead.
func (r *CertificateRenderer) RenderValid(user model.User, course model.Course, cert model.GeneratedCertificate) (string, error) {
	if cert.Status != model.CertStatusDownloadable {
		return r.RenderInvalid()
	}

	cfg, err := r.loadConfig()
	if err != nil {
		return "", err
	}

	fullName := user.FullName
	if fullName == "" {
		fullName = user.Username
	}

	data := PageData{
		CompanyName:   cfg.CompanyName,
		FullName:      fullName,
		CourseName:    course.DisplayName,
		CourseOrg:     course.Org,
		CourseNumber:  course.Number,
		DateIssued:    cert.UpdatedAt.Format("January 2, 2006"),
		CertificateID: cert.VerifyUUID,
		VerifyURL:     cfg.VerifyURLPrefix + cert.VerifyUUID + cfg.VerifyURLSuffix,
		DocumentTitle: fmt.Sprintf("Valid %s %s Certificate | %s", course.Org, course.Number, cfg.CompanyName),
		MetaDescription: fmt.Sprintf("This is a valid %s certificate for %s, who participated in %s %s",
			cfg.CompanyName, fullName, course.Org, course.Number),
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "valid.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render certificate page: %w", err)
	}
	return buf.String(), nil
}

// RenderInvalid renders the "no certificate available" page
func (r *CertificateRenderer) RenderInvalid() (string, error) {
	var buf bytes.Buffer
	data := struct{ Year int }{Year: time.Now().Year()}
	if err := r.templates.ExecuteTemplate(&buf, "invalid.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render invalid page: %w", err)
	}
	return buf.String(), nil
}

// loadConfig reads the newest enabled HTML view configuration row
func (r *CertificateRenderer) loadConfig() (htmlConfig, error) {
	var row model.CertificateHTMLConfig
	err := r.db.Where("enabled = ?", true).Order("id DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return htmlConfig{CompanyName: "go_certmgr"}, nil
		}
		return htmlConfig{}, fmt.Errorf("failed to load html view config: %w", err)
	}

	var cfg htmlConfig
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		return htmlConfig{}, fmt.Errorf("html view config is not valid JSON: %w", err)
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = "go_certmgr"
	}
	return cfg, nil
}
