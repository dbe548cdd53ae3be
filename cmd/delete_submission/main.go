// Command delete_submission removes a box's /tmp/<id>-submission
// directory. It runs with elevated privileges so the unprivileged
// server process can schedule cleanup of directories the sandboxed
// child may have left root-owned files in.
package main

import (
	"fmt"
	"os"
	"strconv"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <box_id>\n", os.Args[0])
		os.Exit(1)
	}

	boxID, err := strconv.ParseUint(os.Args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid box id: %v\n", err)
		os.Exit(1)
	}

	dir := fmt.Sprintf("/tmp/%d-submission", boxID)

	if _, err := os.Stat(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: directory %s does not exist.\n", dir)
		os.Exit(1)
	}

	if err := os.RemoveAll(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing directory %s: %v\n", dir, err)
		os.Exit(1)
	}

	fmt.Printf("Directory %s removed successfully.\n", dir)
}
