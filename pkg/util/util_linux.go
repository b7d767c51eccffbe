/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"os"

	"golang.org/x/sys/unix"
)

func Fadvise(file *os.File, off, length int64, advise uint32) error {
	return unix.Fadvise(int(file.Fd()), off, length, int(advise))
}

func Fdatasync(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}
