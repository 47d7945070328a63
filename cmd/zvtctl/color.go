package main

import "github.com/fatih/color"

func green(s string) string {
	c := color.New(color.FgHiGreen)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func red(s string) string {
	c := color.New(color.FgHiRed)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func cyan(s string) string {
	c := color.New(color.FgHiCyan)
	c.EnableColor()
	return c.SprintFunc()(s)
}
