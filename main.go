package main

import (
	_ "git.handmade.network/hmn/forum/src/admintools"
	_ "git.handmade.network/hmn/forum/src/localstore"
	_ "git.handmade.network/hmn/forum/src/migration"
	"git.handmade.network/hmn/forum/src/website"
)

func main() {
	website.WebsiteCommand.Execute()
}
