package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	s.UpdateLastUsed()

	playwrightOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := s.Page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// Content returns the rendered HTML of the page.
func (s *Session) Content() (string, error) {
	s.UpdateLastUsed()
	html, err := s.Page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	return html, nil
}

// Fill sets the value of the first element matching selector and fires the
// input events a framework-managed textarea listens for.
func (s *Session) Fill(selector, value string) error {
	s.UpdateLastUsed()
	el, err := s.first(selector)
	if err != nil {
		return err
	}
	if err := el.Fill(value); err != nil {
		return fmt.Errorf("fill %q failed: %w", selector, err)
	}
	return nil
}

// Count returns the number of elements matching selector.
func (s *Session) Count(selector string) (int, error) {
	els, err := s.Page.QuerySelectorAll(selector)
	if err != nil {
		return 0, fmt.Errorf("selector query failed: %w", err)
	}
	return len(els), nil
}

// ClickLast clicks the last element matching selector.
func (s *Session) ClickLast(selector string) error {
	s.UpdateLastUsed()
	el, err := s.last(selector)
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("no element found matching selector: %s", selector)
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}
	return nil
}

// LastInnerText returns the rendered text of the last element matching
// selector. ok is false when nothing matches.
func (s *Session) LastInnerText(selector string) (string, bool, error) {
	el, err := s.last(selector)
	if err != nil || el == nil {
		return "", false, err
	}
	text, err := el.InnerText()
	if err != nil {
		return "", false, fmt.Errorf("text extraction failed: %w", err)
	}
	return text, true, nil
}

// FindToggle looks for a button whose text contains any of labels and
// reports whether it is switched on. ok is false when no button matches.
func (s *Session) FindToggle(labels []string) (Toggle, bool, error) {
	el, label, err := s.toggle(labels)
	if err != nil || el == nil {
		return Toggle{}, false, err
	}
	class, _ := el.GetAttribute("class")
	pressed, _ := el.GetAttribute("aria-pressed")
	return Toggle{Label: label, Active: IsToggleActive(class, pressed)}, true, nil
}

// ClickToggle clicks the first button whose text contains any of labels.
func (s *Session) ClickToggle(labels []string) error {
	s.UpdateLastUsed()
	el, _, err := s.toggle(labels)
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("no toggle found for %v", labels)
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click toggle failed: %w", err)
	}
	return nil
}

// IsToggleActive decides a toggle's state from its class and aria-pressed
// attributes.
func IsToggleActive(class, ariaPressed string) bool {
	return strings.Contains(class, ToggleSelectedClass) || ariaPressed == "true"
}

func (s *Session) toggle(labels []string) (playwright.ElementHandle, string, error) {
	els, err := s.Page.QuerySelectorAll(ToggleButtonSelector)
	if err != nil {
		return nil, "", fmt.Errorf("selector query failed: %w", err)
	}
	for _, el := range els {
		text, err := el.InnerText()
		if err != nil {
			continue
		}
		if label, ok := MatchLabel(text, labels); ok {
			return el, label, nil
		}
	}
	return nil, "", nil
}

// MatchLabel returns the first label contained in text.
func MatchLabel(text string, labels []string) (string, bool) {
	for _, l := range labels {
		if l != "" && strings.Contains(text, l) {
			return l, true
		}
	}
	return "", false
}

func (s *Session) first(selector string) (playwright.ElementHandle, error) {
	el, err := s.Page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if el == nil {
		return nil, fmt.Errorf("no element found matching selector: %s", selector)
	}
	return el, nil
}

func (s *Session) last(selector string) (playwright.ElementHandle, error) {
	els, err := s.Page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[len(els)-1], nil
}
