// wikiops — инструмент командной строки для администрирования
// планировщика wikiops через HTTP API.
//
// Использование:
//
//	wikiops [--api-url URL] [--token TOKEN] [--json] <command> [flags]
//
// Команды:
//
//	status   Состояние планировщика и задач
//	start    Запустить планировщик
//	stop     Остановить планировщик
//	run      Запустить задачу вручную
//	history  История выполнений
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/wikiops/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version, os.Stdout, os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
