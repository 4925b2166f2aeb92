/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	linekv: an embedded, append-only, newline-delimited-JSON key-value store.

	This shell opens (or creates) a store directory and lets you poke at
	it interactively: set a value, get it back, check whether a key is
	present, delete it.
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"

	"github.com/launix-de/linekv/kvstore"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

func main() {
	dir := flag.String("dir", "./linekv-data", "directory the store is rooted at")
	flag.Parse()

	fmt.Print(`linekv Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	db, err := kvstore.Open(*dir, kvstore.WithOnError(func(err error) {
		fmt.Println("linekv: background error:", err)
	}))
	if err != nil {
		panic(err)
	}
	onexit.Register(func() { db.Close() })
	defer db.Close()

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".linekv-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("error:", r)
				}
			}()
			runCommand(db, line)
		}()
	}
}

// runCommand dispatches one REPL line. Commands:
//
//	set <id> <json-value>
//	get <id>
//	has <id>
//	del <id>
func runCommand(db *kvstore.DB, line string) {
	fields := strings.SplitN(line, " ", 3)
	cmd := fields[0]

	switch cmd {
	case "set":
		if len(fields) < 3 {
			fmt.Println("usage: set <id> <json-value>")
			return
		}
		var value interface{}
		if err := json.Unmarshal([]byte(fields[2]), &value); err != nil {
			fmt.Println("invalid json:", err)
			return
		}
		record, err := db.Set(fields[1], value)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		printResult(record)
	case "get":
		if len(fields) < 2 {
			fmt.Println("usage: get <id>")
			return
		}
		record, found, err := db.Get(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if !found {
			fmt.Println(resultprompt, "(not found)")
			return
		}
		printResult(record)
	case "has":
		if len(fields) < 2 {
			fmt.Println("usage: has <id>")
			return
		}
		found, err := db.Has(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(resultprompt, found)
	case "del":
		if len(fields) < 2 {
			fmt.Println("usage: del <id>")
			return
		}
		if err := db.Delete(fields[1]); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(resultprompt, "ok")
	default:
		fmt.Println("unknown command:", cmd)
		fmt.Println("commands: set <id> <json-value> | get <id> | has <id> | del <id>")
	}
}

func printResult(record map[string]interface{}) {
	b, err := json.Marshal(record)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(resultprompt, string(b))
}
