package application

import (
	"context"
	"errors"
)

// Theme is the two-valued display preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ErrInvalidTheme indicates a theme outside dark|light.
var ErrInvalidTheme = errors.New("wizard: invalid theme")

// Theme returns the stored preference, dark unless light was saved.
func (w *Wizard) Theme(ctx context.Context) Theme {
	data, ok, err := w.store.Load(ctx, w.storeKey(ThemeKey))
	if err != nil {
		w.logger.Printf("theme load failed: session=%s err=%v", w.session, err)
		return ThemeDark
	}
	if ok && Theme(data) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// SetTheme stores the preference.
func (w *Wizard) SetTheme(ctx context.Context, theme Theme) error {
	if theme != ThemeDark && theme != ThemeLight {
		return ErrInvalidTheme
	}
	return w.store.Save(ctx, w.storeKey(ThemeKey), []byte(theme))
}
