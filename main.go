package main

import (
	"lpkg/internal/lpkg"

	_ "lpkg/pkgs/by_name"
)

func main() {
	lpkg.Main()
}
