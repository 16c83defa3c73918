/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/dustin/go-humanize"
)

func humanReadableSize(bytes int) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.Bytes(uint64(bytes))
}
