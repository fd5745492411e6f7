package main

import "github.com/kirillkom/comment-labeler/internal/cli"

func main() {
	cli.Execute()
}
