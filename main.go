package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const usage = `leaflens-dataset - 作物病害分類器の学習データ作成ツール

使い方:
  leaflens-dataset <command> [options]

コマンド:
  prepare   PlantVillageとローカル画像から train/val のデータセットを作成
  labels    モデルのクラス順に合わせたラベルファイル（labels.txt）を作成
  install   学習済みモデルとラベルファイルをアプリのassetsに配置
  verify    データセット・ラベルファイル・モデルの整合性を確認

各コマンドの詳細は "leaflens-dataset <command> -h" を参照。
`

// errUsage は使い方を表示して終了するためのエラー
var errUsage = errors.New("コマンドが指定されていません")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	klog.Exitf("エラー: %+v", err)
}

// run はサブコマンドを振り分ける
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "prepare":
		return runPrepare(ctx, args[1:], out)
	case "labels":
		return runLabels(args[1:], out)
	case "install":
		return runInstall(args[1:], out)
	case "verify":
		return runVerify(args[1:], out)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return errors.Wrapf(errUsage, "不明なコマンド %q", args[0])
}

// newFlagSet はklogのフラグを含むサブコマンド用のFlagSetを作成
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	klog.InitFlags(fs)
	return fs
}
