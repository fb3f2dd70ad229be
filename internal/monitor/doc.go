// Package monitor renders session history as charts: an interactive
// go-echarts page for the browser and a static gonum/plot PNG.
package monitor
