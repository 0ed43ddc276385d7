package tray

import (
	"fyne.io/fyne/v2"
)

// SVG content for the tray icon: a text cursor inside a speech bubble.
const SVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <!-- Bubble -->
  <path d="M2 3 h12 a1 1 0 0 1 1 1 v6 a1 1 0 0 1 -1 1 h-7 l-3 3 v-3 h-2 a1 1 0 0 1 -1 -1 v-6 a1 1 0 0 1 1 -1 z"
        fill="none" stroke="#0078d4" stroke-width="1.2" stroke-linejoin="round"/>

  <!-- Selected text -->
  <rect x="4" y="5.5" width="5" height="3" fill="#0078d4" opacity="0.35"/>

  <!-- Caret -->
  <line x1="11" y1="5" x2="11" y2="9" stroke="#333333" stroke-width="1" stroke-linecap="round"/>
</svg>`

// PausedSVGContent greys the icon while monitoring is paused.
const PausedSVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <path d="M2 3 h12 a1 1 0 0 1 1 1 v6 a1 1 0 0 1 -1 1 h-7 l-3 3 v-3 h-2 a1 1 0 0 1 -1 -1 v-6 a1 1 0 0 1 1 -1 z"
        fill="none" stroke="#888888" stroke-width="1.2" stroke-linejoin="round"/>
  <line x1="6.5" y1="5" x2="6.5" y2="9" stroke="#888888" stroke-width="1.2"/>
  <line x1="9.5" y1="5" x2="9.5" y2="9" stroke="#888888" stroke-width="1.2"/>
</svg>`

// Icon is the tray and notification icon.
func Icon() fyne.Resource {
	return fyne.NewStaticResource("instant-translator.svg", []byte(SVGContent))
}

// PausedIcon is shown while the selection poller is stopped.
func PausedIcon() fyne.Resource {
	return fyne.NewStaticResource("instant-translator-paused.svg", []byte(PausedSVGContent))
}
