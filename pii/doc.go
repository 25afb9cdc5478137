// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 pii 提供个人身份信息（PII）的检测与位置稳定的脱敏。

# 概述

本包维护 10 种 PII 类型的正则模式表与逐类型脱敏函数。所有匹配
先以原始文本的绝对偏移 [start, end) 收集，按 start 降序从右向左
拼接替换，保证改写过程中前面的偏移始终有效；返回前再按 start
升序重排，调用方看到的是阅读顺序。

# 风险分级

none：无匹配；high：命中 ssn / credit_card / password / api_key /
bearer_token 任意一种；medium：命中 date_of_birth / address 或
匹配总数 >= 3；其余为 low。

# 失败语义

纯正则求值，对任意合法字符串输入不会失败。
*/
package pii
