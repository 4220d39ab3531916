package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"config-codex/internal/config"
	"config-codex/internal/db"
	"config-codex/internal/domain"
	"config-codex/internal/service"
)

type superuserCreator interface {
	RegisterUser(ctx context.Context, input service.RegisterInput) (domain.User, error)
	Promote(ctx context.Context, user domain.User) (domain.User, error)
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	users, closeStore, err := db.OpenUserStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	authSvc := service.NewAuthService(
		logger,
		users,
		service.NewBcryptHasher(cfg.BcryptCost),
		nil,
		service.NewJWTService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL()),
		nil,
		nil,
		nil,
	)

	reader := bufio.NewReader(os.Stdin)
	secret := func() (string, error) { return readLine(reader) }
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret = func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			return string(b), err
		}
	}

	user, err := run(ctx, reader, os.Stdout, secret, authSvc)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Superuser %s created.\n", user.Email)
}

// run pide los datos hasta que el registro es válido y promueve la cuenta.
func run(ctx context.Context, in *bufio.Reader, out io.Writer, readSecret func() (string, error), creator superuserCreator) (domain.User, error) {
	for {
		fmt.Fprint(out, "Email address: ")
		email, err := readLine(in)
		if err != nil {
			return domain.User{}, err
		}
		fmt.Fprint(out, "Password: ")
		password, err := readSecret()
		if err != nil {
			return domain.User{}, err
		}
		fmt.Fprint(out, "Password (again): ")
		again, err := readSecret()
		if err != nil {
			return domain.User{}, err
		}
		if password != again {
			fmt.Fprintln(out, "Error: Your passwords didn't match.")
			continue
		}

		user, err := creator.RegisterUser(ctx, service.RegisterInput{Email: email, Password: password})
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			printValidation(out, vErr)
			continue
		}
		if err != nil {
			return domain.User{}, err
		}
		return creator.Promote(ctx, user)
	}
}

func printValidation(out io.Writer, vErr *service.ValidationError) {
	fields := make([]string, 0, len(vErr.Fields))
	for f := range vErr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range vErr.Fields[f] {
			fmt.Fprintf(out, "Error (%s): %s\n", f, msg)
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
