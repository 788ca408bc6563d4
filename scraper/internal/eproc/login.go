package eproc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/pquerna/otp/totp"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
)

var totpSecretJunk = regexp.MustCompile(`[^A-Za-z2-7=]`)

// CleanTOTPSecret drops spaces, hyphens and anything else outside base32.
func CleanTOTPSecret(secret string) string {
	return strings.ToUpper(totpSecretJunk.ReplaceAllString(secret, ""))
}

// TOTPCode returns the current one-time code for secret.
func TOTPCode(secret string, at time.Time) (string, error) {
	clean := CleanTOTPSecret(secret)
	if clean == "" {
		return "", fmt.Errorf("%w: totp secret is empty", ErrLoginFailed)
	}
	code, err := totp.GenerateCode(clean, at)
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

const (
	loginFormSelector  = "form#kc-form-login"
	otpInputSelector   = "#otp, input[name='otp'], input[name='totp']"
	loginErrorSelector = "#input-error, .kc-feedback-text, .alert-error, span.pf-m-error"
)

// Login authenticates through the Keycloak SSO, answering the OTP step when asked.
// It succeeds only when the redirects end back on the portal host.
func (c *Client) Login(ctx context.Context) error {
	start := time.Now()
	c.logger.InfoContext(ctx, "Logging in to eProc", logging.URL(c.base.String()))

	doc, res, err := c.getPage(ctx, c.resolve(c.cfg.LoginPath))
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	form := doc.Find(loginFormSelector)
	if form.Length() == 0 {
		if c.onPortal(finalURL(res)) {
			c.landing = finalURL(res).String()
			c.logger.InfoContext(ctx, "Session already authenticated")
			return nil
		}
		return fmt.Errorf("%w: login form not found at %s", ErrLoginFailed, finalURL(res))
	}

	values := formValues(form)
	values["username"] = c.cfg.Username
	values["password"] = c.cfg.Password
	doc, res, err = c.submit(ctx, doc, form, values)
	if err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}
	if msg := loginError(doc); msg != "" {
		return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	if input := doc.Find(otpInputSelector).First(); input.Length() > 0 {
		c.logger.InfoContext(ctx, "Second factor requested")
		code, err := TOTPCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return err
		}
		otpForm := input.Closest("form")
		if otpForm.Length() == 0 {
			return fmt.Errorf("%w: otp input outside a form", ErrLoginFailed)
		}
		values := formValues(otpForm)
		values[input.AttrOr("name", "otp")] = code
		doc, res, err = c.submit(ctx, doc, otpForm, values)
		if err != nil {
			return fmt.Errorf("submit otp: %w", err)
		}
		if msg := loginError(doc); msg != "" {
			return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
		}
	}

	landing := finalURL(res)
	if !c.onPortal(landing) || doc.Find(loginFormSelector).Length() > 0 {
		return fmt.Errorf("%w: login ended at %s", ErrLoginFailed, landing)
	}
	c.landing = landing.String()

	c.logger.InfoContext(ctx, "Logged in to eProc",
		logging.URL(c.landing),
		logging.Duration(time.Since(start)))
	return nil
}

// submit posts values to the form's action, resolved against the page URL.
func (c *Client) submit(ctx context.Context, page *goquery.Document, form *goquery.Selection, values map[string]string) (*goquery.Document, *resty.Response, error) {
	action := strings.TrimSpace(form.AttrOr("action", ""))
	target := action
	if page.Url != nil {
		u, err := page.Url.Parse(action)
		if err != nil {
			return nil, nil, fmt.Errorf("parse form action %q: %w", action, err)
		}
		target = u.String()
	} else if target == "" {
		return nil, nil, fmt.Errorf("form has no action")
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(values).
		Post(target)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", target, err)
	}
	if res.StatusCode() >= 500 {
		return nil, res, fmt.Errorf("POST %s: status %d", target, res.StatusCode())
	}
	doc, err := parseHTML(res)
	if err != nil {
		return nil, res, err
	}
	return doc, res, nil
}

// formValues collects the named inputs of a form with their current values.
func formValues(form *goquery.Selection) map[string]string {
	values := make(map[string]string)
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
		}
		values[in.AttrOr("name", "")] = in.AttrOr("value", "")
	})
	return values
}

func loginError(doc *goquery.Document) string {
	var msg string
	doc.Find(loginErrorSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		msg = collapseSpaces(s.Text())
		return msg == ""
	})
	return msg
}
