package processor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/utils"
)

// Job はクラス単位の処理1件
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// ProcessClassesParallel はクラス単位の処理を最大 maxConcurrent 並列で実行する。
// 失敗したクラスは警告として記録し、全体としてエラーを返す。
func ProcessClassesParallel(ctx context.Context, maxConcurrent int, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	// 並列度が1の場合は順次処理
	if maxConcurrent <= 1 {
		var failed []string
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "クラスの処理を中断しました")
			}
			if err := job.Run(ctx); err != nil {
				klog.Warningf("クラス %s の処理に失敗: %+v", job.Name, err)
				failed = append(failed, job.Name)
			}
		}
		return failedClasses(failed)
	}

	sem := utils.NewSemaphore(maxConcurrent)
	var wg sync.WaitGroup
	errs := make(chan error, len(jobs))

	klog.V(1).Infof("並列処理を開始: %dクラスを%d並列で処理", len(jobs), maxConcurrent)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			if err := sem.Acquire(ctx); err != nil {
				return
			}
			defer sem.Release()
			// 待っている間にキャンセルされた場合は実行しない
			if ctx.Err() != nil {
				return
			}

			if err := job.Run(ctx); err != nil {
				errs <- errors.WithMessagef(err, "%s", job.Name)
			}
		}(job)
	}

	wg.Wait()
	close(errs)

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "クラスの処理を中断しました")
	}

	// エラーの確認
	var failed []string
	for err := range errs {
		klog.Warningf("クラスの処理に失敗: %+v", err)
		failed = append(failed, err.Error())
	}
	return failedClasses(failed)
}

func failedClasses(failed []string) error {
	if len(failed) == 0 {
		return nil
	}
	return errors.Errorf("%dクラスでエラーが発生しました: %v", len(failed), failed)
}
